// Package webhook delivers authority events to subscribed HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phantom-auth/authority/internal/authority"
	"github.com/phantom-auth/authority/internal/obs"
)

const (
	HeaderEvent     = "X-Phantom-Event"
	HeaderDelivery  = "X-Phantom-Delivery"
	HeaderSignature = "X-Phantom-Signature"

	signaturePrefix = "sha256="
	userAgent       = "phantom-authority-webhooks/1"

	defaultWorkers = 4
	defaultQueue   = 256
	defaultTimeout = 5 * time.Second
)

// Source resolves the webhooks subscribed to an event.
type Source interface {
	ActiveWebhooksFor(ctx context.Context, appID, event string) ([]*authority.Webhook, error)
}

// Config sizes the dispatcher.
type Config struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the delivery client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.client = c
		}
	}
}

// WithLogger overrides the dispatcher logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// Dispatcher is an authority.Notifier backed by a bounded queue and a fixed
// worker pool. Notify never blocks; events are dropped when the queue is full.
type Dispatcher struct {
	source  Source
	client  *http.Client
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan authority.Event
	group  errgroup.Group

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

var _ authority.Notifier = (*Dispatcher)(nil)

// New starts a dispatcher. Call Close to drain it.
func New(source Source, cfg Config, opts ...Option) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	d := &Dispatcher{
		source:  source,
		client:  &http.Client{Timeout: cfg.Timeout},
		timeout: cfg.Timeout,
		log:     obs.Logger().With(obs.Component("webhook")),
		queue:   make(chan authority.Event, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := 0; i < cfg.Workers; i++ {
		d.group.Go(d.work)
	}
	return d
}

// Notify enqueues evt without blocking.
func (d *Dispatcher) Notify(_ context.Context, evt authority.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(evt, "closed")
		return
	}
	select {
	case d.queue <- evt:
	default:
		d.drop(evt, "queue full")
	}
}

func (d *Dispatcher) drop(evt authority.Event, reason string) {
	d.dropped.Add(1)
	obs.ObserveWebhook("dropped")
	d.log.Warn("webhook event dropped",
		obs.Event(evt.Type), obs.AppID(evt.ApplicationID), zap.String("reason", reason))
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports delivered, failed and dropped counts since start.
func (d *Dispatcher) Stats() (delivered, failed, dropped uint64) {
	return d.delivered.Load(), d.failed.Load(), d.dropped.Load()
}

func (d *Dispatcher) work() error {
	for evt := range d.queue {
		d.dispatch(evt)
	}
	return nil
}

func (d *Dispatcher) dispatch(evt authority.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	hooks, err := d.source.ActiveWebhooksFor(ctx, evt.ApplicationID, evt.Type)
	cancel()
	if err != nil {
		d.log.Error("resolve webhooks", obs.AppID(evt.ApplicationID), obs.Event(evt.Type), zap.Error(err))
		return
	}
	if len(hooks) == 0 {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		d.log.Error("encode webhook payload", obs.Event(evt.Type), zap.Error(err))
		return
	}
	for _, hook := range hooks {
		if err := d.deliver(hook, evt.Type, body); err != nil {
			d.failed.Add(1)
			obs.ObserveWebhook("failed")
			d.log.Warn("webhook delivery failed",
				obs.AppID(evt.ApplicationID), obs.Event(evt.Type),
				zap.String("webhook_id", hook.ID), zap.Error(err))
			continue
		}
		d.delivered.Add(1)
		obs.ObserveWebhook("delivered")
	}
}

func (d *Dispatcher) deliver(hook *authority.Webhook, eventType string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderDelivery, uuid.NewString())
	req.Header.Set(HeaderSignature, Sign(hook.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// ErrBadSignature is returned by Verify on mismatch.
var ErrBadSignature = errors.New("webhook: signature mismatch")

// Verify checks a signature header produced by Sign.
func Verify(secret string, body []byte, header string) error {
	if !hmac.Equal([]byte(Sign(secret, body)), []byte(header)) {
		return ErrBadSignature
	}
	return nil
}
