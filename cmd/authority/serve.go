package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/phantom-auth/authority/internal/audit"
	"github.com/phantom-auth/authority/internal/auth"
	"github.com/phantom-auth/authority/internal/authority"
	"github.com/phantom-auth/authority/internal/httpapi"
	"github.com/phantom-auth/authority/internal/ids"
	"github.com/phantom-auth/authority/internal/obs"
	"github.com/phantom-auth/authority/internal/stream"
	"github.com/phantom-auth/authority/internal/vault"
	"github.com/phantom-auth/authority/internal/webhook"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the client and operator HTTP API",
	Long: `Serve starts the HTTP API. With a database driver the schema is
migrated on startup. Operators listed in AUTHORITY_BOOTSTRAP_FILE are
seeded before the listener opens.

Without AUTHORITY_JWT_SECRET a random signing key is generated, so
operator tokens do not survive a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (default: AUTHORITY_HTTP_ADDR)")
}

// serviceSource resolves webhook subscriptions through the authority service,
// which is built after the dispatcher it notifies.
type serviceSource struct {
	svc *authority.Service
}

func (s *serviceSource) ActiveWebhooksFor(ctx context.Context, appID, event string) ([]*authority.Webhook, error) {
	if s.svc == nil {
		return nil, errors.New("authority service not ready")
	}
	return s.svc.ActiveWebhooksFor(ctx, appID, event)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := cfg.HTTPAddr
	if serveFlags.addr != "" {
		addr = serveFlags.addr
	}

	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	if b.sql != nil {
		if err := migrateUp(ctx, b.sql); err != nil {
			return err
		}
	}

	hasher := vault.New(cfg.BcryptCost)
	if cfg.BootstrapFile != "" {
		n, err := seedOperators(cmd, b.operators, cfg.BootstrapFile)
		if err != nil {
			return err
		}
		logger.Info("operators seeded", zap.Int("changed", n), zap.String("file", cfg.BootstrapFile))
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret, err = ids.RandomString(48)
		if err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		logger.Warn("AUTHORITY_JWT_SECRET not set, using an ephemeral signing key")
	}
	issuer, err := auth.NewIssuer(secret, cfg.JWTTTL)
	if err != nil {
		return err
	}
	operators, err := auth.NewService(b.operators, hasher, issuer)
	if err != nil {
		return err
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	source := &serviceSource{}
	dispatcher := webhook.New(source, webhook.Config{
		Workers:   cfg.WebhookWorkers,
		QueueSize: cfg.WebhookQueue,
		Timeout:   cfg.WebhookTimeout,
	}, webhook.WithLogger(logger.Named("webhook")))

	hub := stream.New(64)

	svc, err := authority.NewService(b.store,
		authority.WithHasher(hasher),
		authority.WithRecorder(audit.NewRecorder(b.store, logger)),
		authority.WithNotifier(authority.Notifiers{dispatcher, hub}),
		authority.WithLogger(logger),
		authority.WithConcealedReasons(cfg.ConcealReasons),
		authority.WithSingleSession(cfg.SingleSession),
	)
	if err != nil {
		return err
	}
	source.svc = svc

	proxies, err := cfg.Proxies()
	if err != nil {
		return err
	}
	api, err := httpapi.New(httpapi.Options{
		Authority:      svc,
		Operators:      operators,
		Ready:          httpapi.ReadyProbe{Store: b},
		Version:        version,
		RateBurst:      cfg.RateBurst,
		RatePerSec:     cfg.RatePerSec,
		Logger:         logger,
		TrustedProxies: proxies,
		Stream:         hub,
	})
	if err != nil {
		return err
	}

	errLog, _ := zap.NewStdLogAt(logger.Named("http"), zapcore.ErrorLevel)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ErrorLog:          errLog,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", obs.Addr(addr), zap.String("version", version), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if cfg.SessionIdleTimeout > 0 && cfg.ReapInterval > 0 {
		g.Go(func() error {
			reapIdle(gctx, svc, cfg.ReapInterval, cfg.SessionIdleTimeout)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Warn("webhook queue not drained", zap.Error(err))
		}
		delivered, failed, dropped := dispatcher.Stats()
		logger.Info("stopped",
			zap.Uint64("webhooks_delivered", delivered),
			zap.Uint64("webhooks_failed", failed),
			zap.Uint64("webhooks_dropped", dropped),
		)
		return nil
	})
	return g.Wait()
}

// reapIdle closes sessions without a heartbeat for idle, every interval.
func reapIdle(ctx context.Context, svc *authority.Service, interval, idle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := svc.ReapIdleSessions(ctx, idle); err != nil && ctx.Err() == nil {
				logger.Error("reap idle sessions", zap.Error(err))
			}
		}
	}
}
