package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// dispatchTimeout bounds one full fan-out, detached from the caller's context
// so a cancelled request cannot cancel an in-flight delivery.
const dispatchTimeout = 30 * time.Second

// Notifier is one outbound alert channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, digest string) error
}

// Dispatcher fans digests out to every configured channel. Dispatch is
// fire-and-forget: it returns immediately and failures never reach the
// caller. A token bucket throttles outbound sends so a burst of incidents
// cannot flood the channels.
type Dispatcher struct {
	notifiers []Notifier
	limiter   *rate.Limiter
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. sendsPerMinute throttles deliveries
// across all channels combined.
func NewDispatcher(notifiers []Notifier, sendsPerMinute int, logger *slog.Logger) *Dispatcher {
	if sendsPerMinute <= 0 {
		sendsPerMinute = 6
	}
	return &Dispatcher{
		notifiers: notifiers,
		limiter:   rate.NewLimiter(rate.Limit(float64(sendsPerMinute)/60.0), sendsPerMinute),
		logger:    logger,
	}
}

// Dispatch formats the snapshot and delivers the digest asynchronously.
// Over-throttle dispatches are dropped, not queued, and logged as such.
func (d *Dispatcher) Dispatch(snapshot Snapshot) {
	if len(d.notifiers) == 0 {
		return
	}

	if !d.limiter.Allow() {
		d.logger.Warn("alert dispatch throttled, digest dropped")
		return
	}

	digest := FormatDigest(snapshot)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(digest)
	}()
}

// Send delivers the digest synchronously to every channel. Used by the CLI;
// per-channel failures are logged and do not stop the fan-out.
func (d *Dispatcher) Send(ctx context.Context, digest string) {
	g, ctx := errgroup.WithContext(ctx)
	for _, n := range d.notifiers {
		g.Go(func() error {
			if err := n.Notify(ctx, digest); err != nil {
				d.logger.Error("alert delivery failed",
					slog.String("channel", n.Name()),
					slog.Any("error", err),
				)
			}
			// Failures are contained per channel, never joined.
			return nil
		})
	}
	_ = g.Wait()
}

// Wait blocks until all in-flight dispatches finish. For shutdown and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) send(digest string) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	d.Send(ctx, digest)
}
