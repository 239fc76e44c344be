package auth

import (
	"context"
	"sync"
	"time"

	"fleet-monitor/oilmonitor/internal/config"
)

// KeyLookup resolves an API key to its owner. An empty owner means the key
// is unknown.
type KeyLookup interface {
	GetAPIKey(ctx context.Context, apiKey string) (string, error)
}

type cacheEntry struct {
	owner     string
	expiresAt time.Time
}

type Authenticator struct {
	localCache sync.Map
	lookup     KeyLookup
	ttl        time.Duration
	staticKeys map[string]bool
	now        func() time.Time
}

// NewAuthenticator accepts a nil lookup, in which case only the static keys
// from VALID_API_KEYS are honoured.
func NewAuthenticator(cfg *config.Config, lookup KeyLookup) *Authenticator {
	staticKeys := make(map[string]bool, len(cfg.ValidAPIKeys))
	for _, k := range cfg.ValidAPIKeys {
		if k != "" {
			staticKeys[k] = true
		}
	}

	return &Authenticator{
		lookup:     lookup,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
		now:        time.Now,
	}
}

// StaticOwner is reported for keys listed in VALID_API_KEYS.
const StaticOwner = "config"

// Identify resolves apiKey to its owner: static config keys first, then the
// in-memory cache, then the lookup. ok is false for unknown keys and when the
// lookup fails.
func (a *Authenticator) Identify(ctx context.Context, apiKey string) (owner string, ok bool) {
	if apiKey == "" {
		return "", false
	}

	if a.staticKeys[apiKey] {
		return StaticOwner, true
	}

	if raw, found := a.localCache.Load(apiKey); found {
		entry := raw.(cacheEntry)
		if a.now().Before(entry.expiresAt) {
			return entry.owner, true
		}
		a.localCache.Delete(apiKey)
	}

	if a.lookup == nil {
		return "", false
	}

	owner, err := a.lookup.GetAPIKey(ctx, apiKey)
	if err != nil || owner == "" {
		return "", false
	}

	a.localCache.Store(apiKey, cacheEntry{
		owner:     owner,
		expiresAt: a.now().Add(a.ttl),
	})
	return owner, true
}

type ownerKey struct{}

// WithOwner returns ctx carrying the owner of the authenticated API key.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner stored by WithOwner, or "" when the request
// was not authenticated.
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}
