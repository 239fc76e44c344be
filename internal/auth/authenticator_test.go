package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleet-monitor/oilmonitor/internal/config"
)

type countingLookup struct {
	keys  map[string]string
	err   error
	calls int
}

func (l *countingLookup) GetAPIKey(_ context.Context, apiKey string) (string, error) {
	l.calls++
	return l.keys[apiKey], l.err
}

func TestIdentifyStaticKeys(t *testing.T) {
	a := NewAuthenticator(&config.Config{ValidAPIKeys: []string{"ops-key"}}, nil)
	ctx := context.Background()

	owner, ok := a.Identify(ctx, "ops-key")
	require.True(t, ok)
	require.Equal(t, StaticOwner, owner)

	_, ok = a.Identify(ctx, "other")
	require.False(t, ok)
	_, ok = a.Identify(ctx, "")
	require.False(t, ok)
}

func TestIdentifyCachesOwner(t *testing.T) {
	lookup := &countingLookup{keys: map[string]string{"dash": "dashboard"}}
	a := NewAuthenticator(&config.Config{AuthCacheTTLSeconds: 60}, lookup)
	ctx := context.Background()

	owner, ok := a.Identify(ctx, "dash")
	require.True(t, ok)
	require.Equal(t, "dashboard", owner)

	// served from the cache, owner included
	delete(lookup.keys, "dash")
	owner, ok = a.Identify(ctx, "dash")
	require.True(t, ok)
	require.Equal(t, "dashboard", owner)
	require.Equal(t, 1, lookup.calls)

	_, ok = a.Identify(ctx, "unknown")
	require.False(t, ok)
	require.Equal(t, 2, lookup.calls)
}

func TestIdentifyCacheExpires(t *testing.T) {
	lookup := &countingLookup{keys: map[string]string{"dash": "dashboard"}}
	a := NewAuthenticator(&config.Config{AuthCacheTTLSeconds: 60}, lookup)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok := a.Identify(ctx, "dash")
	require.True(t, ok)
	now = now.Add(61 * time.Second)
	delete(lookup.keys, "dash")

	_, ok = a.Identify(ctx, "dash")
	require.False(t, ok)
	require.Equal(t, 2, lookup.calls)
}

func TestIdentifyLookupErrorDenies(t *testing.T) {
	lookup := &countingLookup{keys: map[string]string{"dash": "dashboard"}, err: errors.New("redis down")}
	a := NewAuthenticator(&config.Config{}, lookup)

	_, ok := a.Identify(context.Background(), "dash")
	require.False(t, ok)
}

func TestOwnerContext(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, OwnerFrom(ctx))
	require.Equal(t, "dashboard", OwnerFrom(WithOwner(ctx, "dashboard")))
}
