package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inklift/inklift/internal/models"
)

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"type":"post.status_changed"}`)

	a := Sign(body, "secret")
	b := Sign(body, "secret")
	if a != b {
		t.Errorf("same input signed differently: %q vs %q", a, b)
	}
	if a == Sign(body, "other-secret") {
		t.Error("different secrets produced the same signature")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestDeliverSignsAndPosts(t *testing.T) {
	var gotBody []byte
	var gotSignature string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Inklift-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, "secret", 5*time.Second)
	event := Event{
		Type:       "post.status_changed",
		PostID:     "post-1",
		FromStatus: models.StatusReview,
		ToStatus:   models.StatusPublished,
		OccurredAt: time.Now().UTC(),
	}

	if err := n.deliver(context.Background(), event); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}

	if gotSignature != Sign(gotBody, "secret") {
		t.Error("signature header does not match the delivered body")
	}

	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("unmarshal delivered event: %v", err)
	}
	if decoded.Type != "post.status_changed" || decoded.PostID != "post-1" {
		t.Errorf("unexpected event payload: %+v", decoded)
	}
}

func TestDeliverRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, "secret", 2*time.Second)
	n.client.SetRetryCount(0)

	err := n.deliver(context.Background(), Event{Type: "publish.updated", PostID: "post-1"})
	if err == nil {
		t.Error("expected error for non-2xx response")
	}
}
