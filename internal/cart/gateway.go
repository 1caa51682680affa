// Package cart exposes the storefront cart to the checkout flow. The backend
// owns the cart of record; this package only reads it through a short-lived
// cache and clears it after payment.
package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Backend interface {
	GetCart(ctx context.Context, userID string) (*domain.CartSnapshot, error)
	ClearCart(ctx context.Context, userID string) error
}

type Provider interface {
	Get(ctx context.Context, userID string) (*domain.CartSnapshot, error)
	Clear(ctx context.Context, userID string) error
	// Hydrated returns a channel closed once the first load for the user has
	// completed, success or not. Guards that would otherwise race an
	// asynchronously loading cart wait on it instead of a bare timer.
	Hydrated(userID string) <-chan struct{}
}

type Gateway struct {
	backend Backend
	cache   SnapshotCache
	logger  *zap.SugaredLogger
	sfg     singleflight.Group // Prevents cache stampede

	mu       sync.Mutex
	hydrated map[string]chan struct{}
}

func NewGateway(backend Backend, cache SnapshotCache, logger *zap.SugaredLogger) *Gateway {
	return &Gateway{
		backend:  backend,
		cache:    cache,
		logger:   logger,
		hydrated: make(map[string]chan struct{}),
	}
}

func (g *Gateway) Get(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	v, err, _ := g.sfg.Do(userID, func() (interface{}, error) {
		defer g.markHydrated(userID)

		snapshot, err := g.cache.Get(ctx, userID)
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			g.logger.Warnw("cart cache get failed", "user_id", userID, "error", err)
		}

		snapshot, err = g.backend.GetCart(ctx, userID)
		if err != nil {
			return nil, err
		}

		if errSet := g.cache.Set(ctx, userID, snapshot); errSet != nil {
			g.logger.Warnw("cart cache set failed", "user_id", userID, "error", errSet)
		}

		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.CartSnapshot), nil
}

// Clear deletes the backend cart and invalidates the cache. Callers guard
// against double invocation; Clear itself is safe to repeat.
func (g *Gateway) Clear(ctx context.Context, userID string) error {
	if err := g.backend.ClearCart(ctx, userID); err != nil {
		return err
	}
	if err := g.cache.Delete(ctx, userID); err != nil {
		g.logger.Warnw("cart cache invalidate failed", "user_id", userID, "error", err)
	}
	return nil
}

func (g *Gateway) Hydrated(userID string) <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.hydrated[userID]
	if !ok {
		ch = make(chan struct{})
		g.hydrated[userID] = ch
	}
	return ch
}

func (g *Gateway) markHydrated(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.hydrated[userID]
	if !ok {
		ch = make(chan struct{})
		g.hydrated[userID] = ch
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}
