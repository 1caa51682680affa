package paypal

import (
	"context"
	"sync"
	"time"

	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
	"go.uber.org/zap"
)

// Handshaker is the slice of the SDK the loader needs.
type Handshaker interface {
	Handshake(ctx context.Context) error
	Ready() bool
}

// Loader drives SDK acquisition: fire the handshake, poll for readiness in
// case it completed before anyone was listening, and give up after a hard
// timeout. After a timeout the state stays SDK_NOT_LOADED and the only way
// forward is an explicit Reload; the loader never retries on its own.
type Loader struct {
	sdk     Handshaker
	logger  *zap.SugaredLogger
	timeout time.Duration
	poll    time.Duration

	mu      sync.Mutex
	state   domain.WidgetState
	readyCh chan struct{}
}

func NewLoader(sdk Handshaker, logger *zap.SugaredLogger) *Loader {
	return &Loader{
		sdk:     sdk,
		logger:  logger,
		timeout: 10 * time.Second,
		poll:    500 * time.Millisecond,
		state:   domain.WidgetSDKNotLoaded,
		readyCh: make(chan struct{}),
	}
}

// Start launches one acquisition attempt. It returns immediately; readiness
// is observed via Ready/WaitReady.
func (l *Loader) Start(ctx context.Context) {
	go l.acquire(ctx)
}

func (l *Loader) acquire(ctx context.Context) {
	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()

	done := make(chan error, 1)
	go func() {
		handshakeCtx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		done <- l.sdk.Handshake(handshakeCtx)
	}()

	// The poll covers the race where the SDK became ready before this
	// attempt started listening for the handshake result.
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				l.logger.Warnw("provider handshake failed", "error", err)
				// keep polling until the deadline; a concurrent attempt may
				// still succeed
				continue
			}
			l.markLoaded()
			return
		case <-ticker.C:
			if l.sdk.Ready() {
				l.markLoaded()
				return
			}
		case <-deadline.C:
			l.logger.Warnw("provider sdk did not load in time", "timeout", l.timeout)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loader) markLoaded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != domain.WidgetSDKNotLoaded {
		return
	}
	l.state = domain.WidgetSDKLoaded
	close(l.readyCh)
}

func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == domain.WidgetSDKLoaded
}

// WaitReady blocks until the SDK is loaded or ctx expires.
func (l *Loader) WaitReady(ctx context.Context) error {
	l.mu.Lock()
	ch := l.readyCh
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload re-arms the loader after a timed-out acquisition. This is the
// user-visible "reload" affordance.
func (l *Loader) Reload(ctx context.Context) {
	l.mu.Lock()
	if l.state == domain.WidgetSDKLoaded {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.logger.Infow("reloading provider sdk")
	go l.acquire(ctx)
}
