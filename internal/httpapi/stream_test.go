package httpapi

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEventStreamRelaysApplicationEvents(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	token := env.login(t, "dev@example.com", "dev-pass")
	appID, _ := env.createApp(t, token, "Live")

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/applications/"+appID+"/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	if !lines.Scan() || !strings.HasPrefix(lines.Text(), ": stream started") {
		t.Fatalf("missing stream preamble: %q", lines.Text())
	}

	env.createUser(t, token, appID, map[string]any{"username": "dana", "password": "pw-dana"})

	for lines.Scan() {
		if lines.Text() == "event: user.created" {
			if !lines.Scan() || !strings.Contains(lines.Text(), `"application_id":"`+appID+`"`) {
				t.Fatalf("unexpected event data: %q", lines.Text())
			}
			return
		}
	}
	t.Fatalf("stream ended before user.created: %v", lines.Err())
}

func TestEventStreamRequiresAccess(t *testing.T) {
	env := newTestEnv(t)
	dev := env.login(t, "dev@example.com", "dev-pass")
	other := env.login(t, "other@example.com", "other-pass")
	appID, _ := env.createApp(t, dev, "Live")

	if code, _ := env.do(t, call{method: http.MethodGet, path: "/v1/applications/" + appID + "/events", token: other}); code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign application, got %d", code)
	}
}
