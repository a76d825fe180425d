package ids

import (
	"strings"
	"sync"
	"testing"
)

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected ulid length: %q %q", a, b)
	}
	if a >= b {
		t.Fatalf("expected monotonic ids, got %s >= %s", a, b)
	}
}

func TestNewTokenUniqueUnderConcurrency(t *testing.T) {
	const n = 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := NewToken()
			if err != nil {
				t.Errorf("NewToken: %v", err)
				return
			}
			mu.Lock()
			seen[tok] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d unique tokens, got %d", n, len(seen))
	}
}

func TestNewAPIKeyFormat(t *testing.T) {
	key, err := NewAPIKey("phantom")
	if err != nil {
		t.Fatalf("NewAPIKey: %v", err)
	}
	if !strings.HasPrefix(key, "phantom_") {
		t.Fatalf("missing prefix: %s", key)
	}
	body := strings.TrimPrefix(key, "phantom_")
	if len(body) != apiKeyLength {
		t.Fatalf("expected %d chars, got %d", apiKeyLength, len(body))
	}
	for _, c := range body {
		if !strings.ContainsRune(base62Alphabet, c) {
			t.Fatalf("unexpected character %q in %s", c, key)
		}
	}
}
