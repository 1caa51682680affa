package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KeyraGonzalez/tienda-checkout/internal/cart"
	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
	"github.com/KeyraGonzalez/tienda-checkout/internal/paypal"
	"github.com/KeyraGonzalez/tienda-checkout/internal/relay"
	r "github.com/KeyraGonzalez/tienda-checkout/internal/repository"
)

// Backend is the slice of the storefront API the orchestrator drives.
type Backend interface {
	CreateOrder(ctx context.Context, addr domain.ShippingAddress) (string, error)
	CreateCheckoutSession(ctx context.Context, orderID string) (string, error)
	CreatePayPalOrder(ctx context.Context, orderID string) (string, error)
}

// SDKStatus is the readiness probe for the provider script.
type SDKStatus interface {
	Ready() bool
}

type Service struct {
	backend Backend
	carts   cart.Provider
	relay   relay.Store
	buttons paypal.ButtonsProvider
	sdk     SDKStatus
	repo    r.RepoInterface
	logger  *zap.SugaredLogger

	successBaseURL string
	graceDelay     time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewService(
	backend Backend,
	carts cart.Provider,
	relayStore relay.Store,
	buttons paypal.ButtonsProvider,
	sdk SDKStatus,
	repo r.RepoInterface,
	successBaseURL string,
	logger *zap.SugaredLogger,
) *Service {
	return &Service{
		backend:        backend,
		carts:          carts,
		relay:          relayStore,
		buttons:        buttons,
		sdk:            sdk,
		repo:           repo,
		logger:         logger,
		successBaseURL: successBaseURL,
		graceDelay:     time.Second,
		sessions:       make(map[string]*Session),
	}
}

// Begin opens a checkout attempt for a user, capturing the cart as it stands.
// A repeated idempotency key returns the already-open attempt instead of
// creating a second order path for the same click.
func (s *Service) Begin(ctx context.Context, userID, idempotencyKey string) (State, error) {
	if existing, ok, err := s.findByIdempotencyKey(ctx, idempotencyKey); err != nil {
		return State{}, err
	} else if ok {
		return existing.state(s.sdk.Ready()), nil
	}

	snapshot, err := s.carts.Get(ctx, userID)
	if err != nil {
		return State{}, fmt.Errorf("failed to capture cart: %w", err)
	}
	if snapshot.Empty() {
		return State{}, ErrEmptyCart
	}

	sess := &Session{
		ID:     uuid.New().String(),
		UserID: userID,
	}
	sess.step = domain.StepShipping
	sess.status = domain.CheckoutStatusActive
	sess.snapshot = snapshot
	sess.mounted = true
	if s.sdk.Ready() {
		sess.widget = domain.WidgetSDKLoaded
	} else {
		sess.widget = domain.WidgetSDKNotLoaded
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return State{}, fmt.Errorf("failed to marshal cart snapshot: %w", err)
	}
	record := &r.CheckoutSession{
		ID:             sess.ID,
		UserID:         userID,
		Status:         domain.CheckoutStatusActive,
		Step:           domain.StepShipping,
		CartSnapshot:   snapshotJSON,
		IdempotencyKey: idempotencyKey,
		TotalAmount:    snapshot.Totals().Total,
	}
	if err := s.repo.CreateCheckoutSession(ctx, record); err != nil {
		// A concurrent request with the same key won the insert; hand back
		// its session instead of surfacing the conflict.
		if errors.Is(err, r.ErrDuplicateIdempotencyKey) {
			if existing, ok, lookupErr := s.findByIdempotencyKey(ctx, idempotencyKey); lookupErr == nil && ok {
				return existing.state(s.sdk.Ready()), nil
			}
		}
		return State{}, fmt.Errorf("failed to persist checkout session: %w", err)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Infow("checkout started", "session_id", sess.ID, "user_id", userID,
		"total", record.TotalAmount)
	return sess.state(s.sdk.Ready()), nil
}

func (s *Service) findByIdempotencyKey(ctx context.Context, key string) (*Session, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	existingID, status, err := s.repo.GetCheckoutSessionByIdempotencyKey(ctx, key)
	if err != nil && !errors.Is(err, r.ErrIdempotencyKeyNotFound) {
		return nil, false, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existingID == nil {
		return nil, false, nil
	}

	s.logger.Infow("duplicate checkout request",
		"idempotency_key", key, "session_id", *existingID, "status", status)

	s.mu.RLock()
	sess, ok := s.sessions[*existingID]
	s.mu.RUnlock()
	if ok {
		return sess, true, nil
	}

	// The attempt predates this process; rebuild what the repo knows.
	sess, err = s.restore(ctx, *existingID)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

func (s *Service) restore(ctx context.Context, id string) (*Session, error) {
	record, err := s.repo.GetCheckoutSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to restore checkout session: %w", err)
	}

	sess := &Session{ID: record.ID, UserID: record.UserID}
	sess.step = record.Step
	sess.status = record.Status
	sess.mounted = true
	if record.PaymentMethod != nil {
		sess.method = domain.PaymentMethod(*record.PaymentMethod)
	}
	if record.OrderID != nil {
		sess.orderID = *record.OrderID
	}
	if record.ProviderOrderID != nil {
		sess.providerOrderID = *record.ProviderOrderID
	}
	if len(record.ShippingAddress) > 0 {
		var addr domain.ShippingAddress
		if err := json.Unmarshal(record.ShippingAddress, &addr); err == nil {
			sess.address = &addr
		}
	}
	if len(record.CartSnapshot) > 0 {
		var snapshot domain.CartSnapshot
		if err := json.Unmarshal(record.CartSnapshot, &snapshot); err == nil {
			sess.snapshot = &snapshot
		}
	}
	if s.sdk.Ready() {
		sess.widget = domain.WidgetSDKLoaded
	} else {
		sess.widget = domain.WidgetSDKNotLoaded
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *Service) session(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) Get(id string) (State, error) {
	sess, err := s.session(id)
	if err != nil {
		return State{}, err
	}
	return sess.state(s.sdk.Ready()), nil
}

// SubmitShipping validates the address and advances to the payment step.
// Only native required-field validation is applied; the backend owns format
// rules.
func (s *Service) SubmitShipping(ctx context.Context, id string, addr domain.ShippingAddress) (State, error) {
	sess, err := s.session(id)
	if err != nil {
		return State{}, err
	}

	addr.Normalize()
	if err := addr.Validate(); err != nil {
		return State{}, err
	}

	addressJSON, err := json.Marshal(addr)
	if err != nil {
		return State{}, fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	if err := s.repo.SetShippingAddress(ctx, &sess.ID, addressJSON, domain.StepPayment); err != nil {
		return State{}, err
	}

	sess.mu.Lock()
	sess.address = &addr
	sess.step = domain.StepPayment
	sess.notice = ""
	sess.mu.Unlock()

	s.ensureButtons(sess)
	return sess.state(s.sdk.Ready()), nil
}

// SelectPaymentMethod records an explicit user choice. The method is never
// inferred.
func (s *Service) SelectPaymentMethod(ctx context.Context, id string, method domain.PaymentMethod) (State, error) {
	sess, err := s.session(id)
	if err != nil {
		return State{}, err
	}
	if !method.Valid() {
		return State{}, ErrUnknownMethod
	}

	if err := s.repo.SetPaymentMethod(ctx, &sess.ID, method); err != nil {
		return State{}, err
	}

	sess.mu.Lock()
	sess.method = method
	sess.mu.Unlock()

	s.ensureButtons(sess)
	return sess.state(s.sdk.Ready()), nil
}

// Detach marks the attempt as no longer driving a live page. The buttons
// mount is torn down; a later re-attach re-runs the init gate.
func (s *Service) Detach(id string) {
	sess, err := s.session(id)
	if err != nil {
		return
	}
	sess.mu.Lock()
	sess.mounted = false
	sess.mu.Unlock()
	s.ensureButtons(sess)
}

// transition moves the session status, enforcing the state machine, and
// mirrors the move to the repository.
func (s *Service) transition(ctx context.Context, sess *Session, to domain.CheckoutStatus) error {
	sess.mu.Lock()
	if !domain.CanTransitionTo(sess.status, to) {
		from := sess.status
		sess.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	sess.status = to
	sess.mu.Unlock()

	if err := s.repo.UpdateCheckoutSessionStatus(ctx, &sess.ID, &to); err != nil {
		return err
	}
	return nil
}
