package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/inklift/inklift/internal/logger"
	"github.com/inklift/inklift/internal/models"
)

// Event is one lifecycle notification delivered to the configured
// callback URL.
type Event struct {
	Type       string          `json:"type"`
	PostID     string          `json:"post_id"`
	OrgID      string          `json:"org_id,omitempty"`
	FromStatus models.Status   `json:"from_status,omitempty"`
	ToStatus   models.Status   `json:"to_status,omitempty"`
	Publish    *models.Publish `json:"publish,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Notifier delivers events to a subscriber webhook. A Notifier with
// an empty URL drops everything, so callers never need a nil check.
type Notifier struct {
	client *resty.Client
	url    string
	secret string
}

// NewNotifier builds a webhook notifier. url may be empty to disable
// delivery.
func NewNotifier(url, secret string, timeout time.Duration) *Notifier {
	return &Notifier{
		client: resty.New().
			SetTimeout(timeout).
			SetRetryCount(3).
			SetRetryWaitTime(2 * time.Second).
			SetRetryMaxWaitTime(10 * time.Second),
		url:    url,
		secret: secret,
	}
}

// PostTransitioned reports a status change.
func (n *Notifier) PostTransitioned(post *models.Post, from models.Status) {
	n.dispatch(Event{
		Type:       "post.status_changed",
		PostID:     post.ID,
		OrgID:      post.OrgID,
		FromStatus: from,
		ToStatus:   post.Status,
		OccurredAt: time.Now().UTC(),
	})
}

// PublishUpdated reports a publish record change.
func (n *Notifier) PublishUpdated(pub *models.Publish) {
	n.dispatch(Event{
		Type:       "publish.updated",
		PostID:     pub.PostID,
		Publish:    pub,
		OccurredAt: time.Now().UTC(),
	})
}

// dispatch fires the delivery in the background. A failed delivery is
// logged and dropped; the lifecycle operation already succeeded.
func (n *Notifier) dispatch(event Event) {
	if n.url == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := n.deliver(ctx, event); err != nil {
			logger.Get().Error().
				Err(err).
				Str("event", event.Type).
				Str("post_id", event.PostID).
				Msg("Webhook delivery failed")
		}
	}()
}

func (n *Notifier) deliver(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Inklift-Signature", Sign(body, n.secret)).
		SetBody(body).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	logger.Get().Debug().
		Str("event", event.Type).
		Str("post_id", event.PostID).
		Int("status", resp.StatusCode()).
		Msg("Webhook delivered")
	return nil
}

// Sign computes the hex HMAC-SHA256 signature a subscriber verifies
// against.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
