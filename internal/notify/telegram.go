package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var ErrNotification = errors.New("notification failed")

// Telegram posts messages to a chat through the Bot API sendMessage method.
type Telegram struct {
	client   *http.Client
	endpoint string
	chatID   string
}

func NewTelegram(apiURL, token, chatID string, timeout time.Duration) *Telegram {
	return &Telegram{
		client:   &http.Client{Timeout: timeout},
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", apiURL, token),
		chatID:   chatID,
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the url carries the bot token, keep it out of logs
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: telegram returned %s", ErrNotification, resp.Status)
	}
	return nil
}
