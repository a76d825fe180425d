package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/phantom-auth/authority/internal/authority"
)

type staticSource struct {
	hooks []*authority.Webhook
}

func (s staticSource) ActiveWebhooksFor(_ context.Context, _ string, event string) ([]*authority.Webhook, error) {
	var out []*authority.Webhook
	for _, h := range s.hooks {
		if h.Subscribed(event) {
			out = append(out, h)
		}
	}
	return out, nil
}

type captured struct {
	header http.Header
	body   []byte
}

func TestDispatcherDeliversSignedPayload(t *testing.T) {
	var (
		mu   sync.Mutex
		reqs []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, captured{header: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	src := staticSource{hooks: []*authority.Webhook{
		{ID: "wh-1", URL: srv.URL, Secret: "topsecret", Events: []string{authority.EventLoginSuccess}, IsActive: true},
		{ID: "wh-2", URL: srv.URL, Secret: "other", Events: []string{authority.EventHWIDBound}, IsActive: true},
	}}
	d := New(src, Config{Workers: 2, QueueSize: 8, Timeout: time.Second})

	d.Notify(context.Background(), authority.Event{
		ID: "evt-1", Type: authority.EventLoginSuccess, ApplicationID: "app-1", AppUserID: "u-1",
		Data: map[string]any{"ip": "10.0.0.1"}, OccurredAt: time.Now().UTC(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reqs) != 1 {
		t.Fatalf("expected one delivery, got %d", len(reqs))
	}
	got := reqs[0]
	if got.header.Get(HeaderEvent) != authority.EventLoginSuccess {
		t.Fatalf("unexpected event header: %q", got.header.Get(HeaderEvent))
	}
	if got.header.Get(HeaderDelivery) == "" {
		t.Fatalf("missing delivery id")
	}
	if err := Verify("topsecret", got.body, got.header.Get(HeaderSignature)); err != nil {
		t.Fatalf("signature did not verify: %v", err)
	}
	var payload authority.Event
	if err := json.Unmarshal(got.body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ID != "evt-1" || payload.AppUserID != "u-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if delivered, failed, dropped := d.Stats(); delivered != 1 || failed != 0 || dropped != 0 {
		t.Fatalf("unexpected stats: %d/%d/%d", delivered, failed, dropped)
	}
}

func TestDispatcherCountsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(staticSource{hooks: []*authority.Webhook{
		{ID: "wh-1", URL: srv.URL, Secret: "s", Events: []string{"*"}, IsActive: true},
	}}, Config{Workers: 1, QueueSize: 4, Timeout: time.Second})
	d.Notify(context.Background(), authority.Event{Type: authority.EventLoginFailure, ApplicationID: "app-1"})
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, failed, _ := d.Stats(); failed != 1 {
		t.Fatalf("expected one failed delivery, got %d", failed)
	}
}

type blockingSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) ActiveWebhooksFor(context.Context, string, string) ([]*authority.Webhook, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil, nil
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	d := New(src, Config{Workers: 1, QueueSize: 1, Timeout: time.Second})

	evt := authority.Event{Type: authority.EventLoginSuccess, ApplicationID: "app-1"}
	d.Notify(context.Background(), evt)
	<-src.started

	done := make(chan struct{})
	go func() {
		d.Notify(context.Background(), evt) // queued
		d.Notify(context.Background(), evt) // dropped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Notify blocked on a full queue")
	}
	close(src.release)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, dropped := d.Stats(); dropped != 1 {
		t.Fatalf("expected one dropped event, got %d", dropped)
	}

	d.Notify(context.Background(), evt)
	if _, _, dropped := d.Stats(); dropped != 2 {
		t.Fatalf("expected notify after close to drop, got %d", dropped)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	body := []byte(`{"type":"login.success"}`)
	sig := Sign("k", body)
	if err := Verify("k", []byte(`{"type":"login.failure"}`), sig); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
	if err := Verify("other", body, sig); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature for wrong secret, got %v", err)
	}
}
