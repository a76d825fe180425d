package authority

import (
	"context"
	"errors"
	"testing"
)

func TestWebhookCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.svc.CreateWebhook(ctx, f.app.ID, NewWebhook{
		URL:    "https://hooks.example.com/phantom",
		Events: []string{EventLoginFailure, EventLoginSuccess, EventLoginSuccess},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(w.Secret) != webhookSecretLength {
		t.Fatalf("expected generated secret, got %q", w.Secret)
	}
	if len(w.Events) != 2 || w.Events[0] != EventLoginFailure {
		t.Fatalf("expected deduplicated sorted events, got %v", w.Events)
	}

	off := false
	if _, err := f.svc.UpdateWebhook(ctx, f.app.ID, w.ID, WebhookUpdate{IsActive: &off}); err != nil {
		t.Fatalf("update: %v", err)
	}
	hooks, _ := f.svc.ActiveWebhooksFor(ctx, f.app.ID, EventLoginSuccess)
	if len(hooks) != 0 {
		t.Fatalf("inactive webhook must not be selected")
	}

	on := true
	if _, err := f.svc.UpdateWebhook(ctx, f.app.ID, w.ID, WebhookUpdate{IsActive: &on, Events: []string{"*"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	hooks, _ = f.svc.ActiveWebhooksFor(ctx, f.app.ID, EventHWIDReset)
	if len(hooks) != 1 {
		t.Fatalf("wildcard webhook should match, got %d", len(hooks))
	}

	if err := f.svc.DeleteWebhook(ctx, f.app.ID, w.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.GetWebhook(ctx, f.app.ID, w.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWebhookValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []NewWebhook{
		{URL: "ftp://example.com", Events: []string{EventLoginSuccess}},
		{URL: "/relative", Events: []string{EventLoginSuccess}},
		{URL: "https://example.com", Events: nil},
		{URL: "https://example.com", Events: []string{"login.maybe"}},
	}
	for _, in := range cases {
		if _, err := f.svc.CreateWebhook(ctx, f.app.ID, in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%+v: expected ErrInvalidInput, got %v", in, err)
		}
	}
}
