package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
	"github.com/KeyraGonzalez/tienda-checkout/internal/paypal"
	"github.com/KeyraGonzalez/tienda-checkout/internal/relay"
	r "github.com/KeyraGonzalez/tienda-checkout/internal/repository"
)

// MockBackend implements Backend for testing
type MockBackend struct {
	mu sync.Mutex

	OrderID         string
	SessionURL      string
	ProviderOrderID string

	CreateOrderErr        error
	CreateSessionErr      error
	CreatePayPalOrderErr  error

	CreateOrderCalls       int
	CreateSessionCalls     int
	CreatePayPalOrderCalls int
	LastAddress            *domain.ShippingAddress
}

func (m *MockBackend) CreateOrder(_ context.Context, addr domain.ShippingAddress) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateOrderCalls++
	m.LastAddress = &addr
	return m.OrderID, m.CreateOrderErr
}

func (m *MockBackend) CreateCheckoutSession(_ context.Context, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateSessionCalls++
	return m.SessionURL, m.CreateSessionErr
}

func (m *MockBackend) CreatePayPalOrder(_ context.Context, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreatePayPalOrderCalls++
	return m.ProviderOrderID, m.CreatePayPalOrderErr
}

// MockCarts implements cart.Provider for testing
type MockCarts struct {
	mu sync.Mutex

	Snapshot *domain.CartSnapshot
	GetErr   error
	ClearErr error

	GetCalls   int
	ClearCalls int

	hydrated chan struct{}
}

func NewMockCarts(snapshot *domain.CartSnapshot) *MockCarts {
	return &MockCarts{Snapshot: snapshot, hydrated: make(chan struct{})}
}

func (m *MockCarts) Get(_ context.Context, _ string) (*domain.CartSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	return m.Snapshot, m.GetErr
}

func (m *MockCarts) Clear(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls++
	if m.ClearErr == nil {
		m.Snapshot = &domain.CartSnapshot{}
	}
	return m.ClearErr
}

func (m *MockCarts) Hydrated(_ string) <-chan struct{} {
	return m.hydrated
}

func (m *MockCarts) MarkHydrated() {
	close(m.hydrated)
}

func (m *MockCarts) SetSnapshot(s *domain.CartSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snapshot = s
}

func (m *MockCarts) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ClearCalls
}

// MockRelay implements relay.Store in memory for testing
type MockRelay struct {
	mu      sync.Mutex
	entries map[string]string

	PutErr error
	GetErr error

	PutCalls  int
	DropCalls int
}

func NewMockRelay() *MockRelay {
	return &MockRelay{entries: map[string]string{}}
}

func (m *MockRelay) Put(_ context.Context, token, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.PutErr != nil {
		return m.PutErr
	}
	m.entries[token] = orderID
	return nil
}

func (m *MockRelay) Get(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", m.GetErr
	}
	orderID, ok := m.entries[token]
	if !ok {
		return "", relay.ErrNotFound
	}
	return orderID, nil
}

func (m *MockRelay) Drop(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DropCalls++
	delete(m.entries, token)
	return nil
}

// Stash writes an entry directly, simulating a value left by a previous
// process.
func (m *MockRelay) Stash(token, orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[token] = orderID
}

// MockButtons implements paypal.ButtonsProvider for testing. It captures the
// callbacks handed to RenderButtons so tests can drive the widget protocol
// directly.
type MockButtons struct {
	mu sync.Mutex

	ready     bool
	RenderErr error

	RenderCalls  int
	UnmountCalls int
	callbacks    map[string]paypal.Callbacks
}

func NewMockButtons(ready bool) *MockButtons {
	return &MockButtons{ready: ready, callbacks: map[string]paypal.Callbacks{}}
}

func (m *MockButtons) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *MockButtons) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

func (m *MockButtons) RenderButtons(containerID string, cb paypal.Callbacks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RenderCalls++
	if m.RenderErr != nil {
		return m.RenderErr
	}
	m.callbacks[containerID] = cb
	return nil
}

func (m *MockButtons) Unmount(containerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UnmountCalls++
	delete(m.callbacks, containerID)
}

func (m *MockButtons) Callbacks(containerID string) (paypal.Callbacks, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, ok := m.callbacks[containerID]
	return cb, ok
}

// MockRepo implements r.RepoInterface for testing
type MockRepo struct {
	mu sync.Mutex

	Sessions map[string]*r.CheckoutSession

	CreateErr   error
	CompleteErr error

	// LookupMisses makes that many idempotency-key lookups report not-found,
	// simulating a concurrent insert landing between lookup and insert.
	LookupMisses int

	CompleteCalls   int
	CompletePayload []byte
}

func NewMockRepo() *MockRepo {
	return &MockRepo{Sessions: map[string]*r.CheckoutSession{}}
}

func (m *MockRepo) Close() error                      { return nil }
func (m *MockRepo) RunMigrations(*r.Credentials) error { return nil }

func (m *MockRepo) CreateCheckoutSession(_ context.Context, session *r.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	cp := *session
	m.Sessions[session.ID] = &cp
	return nil
}

func (m *MockRepo) GetCheckoutSession(_ context.Context, id string) (*r.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.Sessions[id]
	if !ok {
		return nil, r.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (m *MockRepo) GetCheckoutSessionByIdempotencyKey(_ context.Context, key string) (*string, *domain.CheckoutStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupMisses > 0 {
		m.LookupMisses--
		return nil, nil, r.ErrIdempotencyKeyNotFound
	}
	for _, session := range m.Sessions {
		if session.IdempotencyKey == key {
			id, status := session.ID, session.Status
			return &id, &status, nil
		}
	}
	return nil, nil, r.ErrIdempotencyKeyNotFound
}

func (m *MockRepo) UpdateCheckoutSessionStatus(_ context.Context, id *string, status *domain.CheckoutStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.Sessions[*id]
	if !ok {
		return r.ErrSessionNotFound
	}
	session.Status = *status
	return nil
}

func (m *MockRepo) SetShippingAddress(_ context.Context, id *string, address []byte, step domain.CheckoutStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.Sessions[*id]
	if !ok {
		return r.ErrSessionNotFound
	}
	session.ShippingAddress = address
	session.Step = step
	return nil
}

func (m *MockRepo) SetPaymentMethod(_ context.Context, id *string, method domain.PaymentMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.Sessions[*id]
	if !ok {
		return r.ErrSessionNotFound
	}
	s := string(method)
	session.PaymentMethod = &s
	return nil
}

func (m *MockRepo) SetOrder(_ context.Context, id *string, orderID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.Sessions[*id]
	if !ok {
		return r.ErrSessionNotFound
	}
	session.OrderID = orderID
	return nil
}

func (m *MockRepo) SetProviderOrder(_ context.Context, id *string, providerOrderID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.Sessions[*id]
	if !ok {
		return r.ErrSessionNotFound
	}
	session.ProviderOrderID = providerOrderID
	return nil
}

func (m *MockRepo) CompleteCheckoutSession(_ context.Context, id *string, payload []byte, status *domain.CheckoutStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalls++
	if m.CompleteErr != nil {
		return m.CompleteErr
	}
	session, ok := m.Sessions[*id]
	if !ok {
		return r.ErrSessionNotFound
	}
	session.Status = *status
	m.CompletePayload = payload
	return nil
}

func (m *MockRepo) GetStuckSessions(_ context.Context) ([]*r.CheckoutSession, error) {
	return nil, nil
}

func (m *MockRepo) GetUnprocessedEvents(_ context.Context, _ int) ([]*r.OutboxEvent, error) {
	return nil, nil
}

func (m *MockRepo) MarkEventAsProcessed(_ context.Context, _ int) error {
	return nil
}

func (m *MockRepo) Completes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls
}

var errBoom = fmt.Errorf("boom")
