package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/config"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("authority %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestSeedMigrateAndTokenCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AUTHORITY_DB_DRIVER", "sqlite")
	t.Setenv("AUTHORITY_DB_DSN", filepath.Join(dir, "authority.db"))
	t.Setenv("AUTHORITY_BCRYPT_COST", "4")
	t.Setenv("AUTHORITY_LOG_LEVEL", "error")
	t.Setenv("AUTHORITY_JWT_SECRET", "cli-secret")
	t.Setenv("ROOT_PASSWORD", "hunter22")

	bootstrap := filepath.Join(dir, "bootstrap.yaml")
	doc := "operators:\n  - email: root@example.com\n    password: ${ROOT_PASSWORD}\n    role: owner\n"
	if err := os.WriteFile(bootstrap, []byte(doc), 0o600); err != nil {
		t.Fatalf("write bootstrap: %v", err)
	}

	if out := execute(t, "seed", "--file", bootstrap); !strings.Contains(out, "1 operator(s)") {
		t.Fatalf("unexpected seed output: %q", out)
	}
	if out := execute(t, "seed", "--file", bootstrap); !strings.Contains(out, "0 operator(s)") {
		t.Fatalf("second seed should be a no-op: %q", out)
	}

	out := execute(t, "migrate", "status")
	if !strings.Contains(out, "applied  0001_init.up.sql") {
		t.Fatalf("unexpected status output: %q", out)
	}

	signed := strings.TrimSpace(execute(t, "token", "--email", "root@example.com"))
	issuer, err := auth.NewIssuer("cli-secret", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	claims, err := issuer.Parse(signed)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.Role != auth.RoleOwner {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}

func TestOpenSQLRejectsMemoryDriver(t *testing.T) {
	if _, err := openSQL(&config.Config{DBDriver: "memory"}); err == nil {
		t.Fatalf("expected error for memory driver")
	}
}

func TestOpenBackendMemory(t *testing.T) {
	b, err := openBackend(&config.Config{DBDriver: "memory"})
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	defer b.Close()
	if b.sql != nil {
		t.Fatalf("memory backend should not hold a database")
	}
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestServiceSourceBeforeReady(t *testing.T) {
	var src serviceSource
	if _, err := src.ActiveWebhooksFor(context.Background(), "app", "login.success"); err == nil {
		t.Fatalf("expected error before the service is attached")
	}
}
