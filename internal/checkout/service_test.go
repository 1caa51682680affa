package checkout

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
	"github.com/KeyraGonzalez/tienda-checkout/internal/paypal"
	r "github.com/KeyraGonzalez/tienda-checkout/internal/repository"
)

func approvalFor(providerOrderID string) paypal.Approval {
	return paypal.Approval{ProviderOrderID: providerOrderID}
}

func testSnapshot(total float64) *domain.CartSnapshot {
	return &domain.CartSnapshot{
		Items: []domain.CartSnapshotItem{
			{ProductID: "prod-1", ProductName: "Hoodie", Size: "M", Quantity: 1, UnitPrice: total, Subtotal: total},
		},
		TotalAmount: total,
		Currency:    "USD",
	}
}

func testAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FirstName: "Keyra",
		LastName:  "Gonzalez",
		Street:    "Av. Central 12",
		City:      "San Salvador",
		State:     "SS",
		ZipCode:   "1101",
		Country:   "SV",
	}
}

type fixture struct {
	svc     *Service
	backend *MockBackend
	carts   *MockCarts
	relay   *MockRelay
	buttons *MockButtons
	repo    *MockRepo
}

func newFixture(t *testing.T, sdkReady bool) *fixture {
	t.Helper()
	f := &fixture{
		backend: &MockBackend{
			OrderID:         "order-123",
			SessionURL:      "https://pay.example.com/session/abc",
			ProviderOrderID: "PAYPAL-789",
		},
		carts:   NewMockCarts(testSnapshot(150)),
		relay:   NewMockRelay(),
		buttons: NewMockButtons(sdkReady),
		repo:    NewMockRepo(),
	}
	f.svc = NewService(
		f.backend, f.carts, f.relay, f.buttons, f.buttons, f.repo,
		"https://shop.example.com", zap.NewNop().Sugar(),
	)
	f.svc.graceDelay = 20 * time.Millisecond
	return f
}

// begin opens a session and walks it to the payment step with a valid
// address.
func (f *fixture) begin(t *testing.T, method domain.PaymentMethod) State {
	t.Helper()
	ctx := context.Background()
	st, err := f.svc.Begin(ctx, "user-1", "key-1")
	require.NoError(t, err)
	st, err = f.svc.SubmitShipping(ctx, st.ID, testAddress())
	require.NoError(t, err)
	if method != "" {
		st, err = f.svc.SelectPaymentMethod(ctx, st.ID, method)
		require.NoError(t, err)
	}
	return st
}

func TestBegin_EmptyCartRejected(t *testing.T) {
	f := newFixture(t, true)
	f.carts.SetSnapshot(&domain.CartSnapshot{})

	_, err := f.svc.Begin(context.Background(), "user-1", "key-1")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestBegin_IdempotencyKeyReturnsSameSession(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.svc.Begin(ctx, "user-1", "key-1")
	require.NoError(t, err)
	second, err := f.svc.Begin(ctx, "user-1", "key-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.repo.Sessions, 1)
}

func TestBegin_LostInsertRaceReturnsWinnerSession(t *testing.T) {
	// The lookup misses, a concurrent request inserts the same key first,
	// and this request's own insert hits the unique constraint. The caller
	// must get the winner's session, not a conflict error.
	f := newFixture(t, true)
	ctx := context.Background()

	snapshotJSON, err := json.Marshal(testSnapshot(150))
	require.NoError(t, err)
	f.repo.Sessions["winner"] = &r.CheckoutSession{
		ID:             "winner",
		UserID:         "user-1",
		Status:         domain.CheckoutStatusActive,
		Step:           domain.StepShipping,
		CartSnapshot:   snapshotJSON,
		IdempotencyKey: "key-1",
	}
	f.repo.LookupMisses = 1
	f.repo.CreateErr = r.ErrDuplicateIdempotencyKey

	st, err := f.svc.Begin(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "winner", st.ID)
	assert.Len(t, f.repo.Sessions, 1)
}

func TestBegin_ComputesTotals(t *testing.T) {
	f := newFixture(t, true)

	st, err := f.svc.Begin(context.Background(), "user-1", "key-1")
	require.NoError(t, err)

	assert.Equal(t, 15.0, st.Totals.Tax)
	assert.Equal(t, 0.0, st.Totals.Shipping)
	assert.Equal(t, 165.0, st.Totals.Total)
}

func TestPayWithCard_ReturnsHostedURL(t *testing.T) {
	f := newFixture(t, true)
	st := f.begin(t, domain.PaymentMethodCard)

	url, err := f.svc.PayWithCard(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/session/abc", url)

	// the pending order survives the upcoming navigation
	orderID, err := f.relay.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, "order-123", orderID)
}

func TestPayWithCard_NoOpWhilePayPalSelected(t *testing.T) {
	f := newFixture(t, true)
	st := f.begin(t, domain.PaymentMethodPayPal)

	_, err := f.svc.PayWithCard(context.Background(), st.ID)
	assert.ErrorIs(t, err, ErrPayPalSelected)

	// no order, no session, no state change
	assert.Equal(t, 0, f.backend.CreateOrderCalls)
	assert.Equal(t, 0, f.backend.CreateSessionCalls)
	got, err := f.svc.Get(st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusActive, got.Status)
}

func TestPayWithCard_NoMethodSelected(t *testing.T) {
	f := newFixture(t, true)
	st := f.begin(t, "")

	_, err := f.svc.PayWithCard(context.Background(), st.ID)
	assert.ErrorIs(t, err, ErrNoPaymentMethod)
	assert.Equal(t, 0, f.backend.CreateOrderCalls)
}

func TestPayWithCard_BackendFailureIsRetryable(t *testing.T) {
	f := newFixture(t, true)
	st := f.begin(t, domain.PaymentMethodCard)
	f.backend.CreateOrderErr = errBoom

	_, err := f.svc.PayWithCard(context.Background(), st.ID)
	require.Error(t, err)

	got, _ := f.svc.Get(st.ID)
	assert.Equal(t, domain.CheckoutStatusFailed, got.Status)
	assert.Equal(t, "payment failed", got.Notice)

	// a second attempt succeeds from FAILED
	f.backend.CreateOrderErr = nil
	url, err := f.svc.PayWithCard(context.Background(), st.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
}

func TestEnsureButtons_GateHoldsUntilAllConditions(t *testing.T) {
	f := newFixture(t, false) // handshake not done yet
	st := f.begin(t, domain.PaymentMethodPayPal)

	_, rendered := f.buttons.Callbacks(st.ID)
	assert.False(t, rendered, "buttons must not render before the SDK is ready")

	// handshake completes; the next gate evaluation renders
	f.buttons.SetReady(true)
	_, err := f.svc.SelectPaymentMethod(context.Background(), st.ID, domain.PaymentMethodPayPal)
	require.NoError(t, err)

	_, rendered = f.buttons.Callbacks(st.ID)
	assert.True(t, rendered)
	got, _ := f.svc.Get(st.ID)
	assert.Equal(t, domain.WidgetButtonsReady, got.Widget)
}

func TestEnsureButtons_CardSelectionUnmounts(t *testing.T) {
	f := newFixture(t, true)
	st := f.begin(t, domain.PaymentMethodPayPal)
	_, rendered := f.buttons.Callbacks(st.ID)
	require.True(t, rendered)

	_, err := f.svc.SelectPaymentMethod(context.Background(), st.ID, domain.PaymentMethodCard)
	require.NoError(t, err)

	_, rendered = f.buttons.Callbacks(st.ID)
	assert.False(t, rendered, "switching to card must tear the widget down")
}

func TestEnsureButtons_ReinitClearsMountFirst(t *testing.T) {
	f := newFixture(t, true)
	st := f.begin(t, domain.PaymentMethodPayPal)
	before := f.buttons.UnmountCalls

	// re-selecting paypal re-runs the gate; the mount is cleared before the
	// second render so widgets never stack
	_, err := f.svc.SelectPaymentMethod(context.Background(), st.ID, domain.PaymentMethodPayPal)
	require.NoError(t, err)

	assert.Greater(t, f.buttons.UnmountCalls, before)
	_, rendered := f.buttons.Callbacks(st.ID)
	assert.True(t, rendered)
}

func TestButtonsCreateOrder_HappyPath(t *testing.T) {
	f := newFixture(t, true)
	st := f.begin(t, domain.PaymentMethodPayPal)
	cb, ok := f.buttons.Callbacks(st.ID)
	require.True(t, ok)

	providerOrderID, err := cb.CreateOrder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PAYPAL-789", providerOrderID)

	// real order first, provider order second, pending ID relayed between
	assert.Equal(t, 1, f.backend.CreateOrderCalls)
	assert.Equal(t, 1, f.backend.CreatePayPalOrderCalls)
	orderID, err := f.relay.Get(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, "order-123", orderID)
}

func TestButtonsCreateOrder_IncompleteAddressAbortsBeforeNetwork(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st, err := f.svc.Begin(ctx, "user-1", "key-1")
	require.NoError(t, err)

	// reach the payment step without an address on file
	f.svc.sessions[st.ID].mu.Lock()
	f.svc.sessions[st.ID].step = domain.StepPayment
	f.svc.sessions[st.ID].mu.Unlock()
	_, err = f.svc.SelectPaymentMethod(ctx, st.ID, domain.PaymentMethodPayPal)
	require.NoError(t, err)

	cb, ok := f.buttons.Callbacks(st.ID)
	require.True(t, ok)
	_, err = cb.CreateOrder(ctx)
	assert.ErrorIs(t, err, ErrShippingIncomplete)

	assert.Equal(t, 0, f.backend.CreateOrderCalls, "no order may exist for an invalid address")
	assert.Equal(t, 0, f.backend.CreatePayPalOrderCalls)
	assert.Equal(t, 0, f.relay.PutCalls)
}

func TestButtonsApprove_DoubleDeliveryClearsCartOnce(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st := f.begin(t, domain.PaymentMethodPayPal)
	cb, ok := f.buttons.Callbacks(st.ID)
	require.True(t, ok)

	_, err := cb.CreateOrder(ctx)
	require.NoError(t, err)

	approval := approvalFor("PAYPAL-789")
	url1, err := cb.OnApprove(ctx, approval)
	require.NoError(t, err)
	url2, err := cb.OnApprove(ctx, approval)
	require.NoError(t, err)

	assert.Equal(t, url1, url2)
	assert.Equal(t, 1, f.carts.Clears(), "cart clear must run exactly once")
	assert.Equal(t, 1, f.repo.Completes(), "completion must be recorded exactly once")
}

func TestButtonsApprove_SuccessURLCarriesBothOrderIDs(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st := f.begin(t, domain.PaymentMethodPayPal)
	cb, _ := f.buttons.Callbacks(st.ID)

	_, err := cb.CreateOrder(ctx)
	require.NoError(t, err)
	url, err := cb.OnApprove(ctx, approvalFor("PAYPAL-789"))
	require.NoError(t, err)

	assert.Equal(t,
		"https://shop.example.com/order-success?paypal_order_id=PAYPAL-789&order_id=order-123&payment_method=paypal",
		url)
}

func TestButtonsApprove_ReadsOrderIDFromRelayNotMemory(t *testing.T) {
	// The approval arrives in a process that never ran CreateOrder: only the
	// relay knows the pending order.
	f := newFixture(t, true)
	st := f.begin(t, domain.PaymentMethodPayPal)
	f.relay.Stash(st.ID, "order-from-previous-process")

	cb, ok := f.buttons.Callbacks(st.ID)
	require.True(t, ok)
	url, err := cb.OnApprove(context.Background(), approvalFor("PAYPAL-789"))
	require.NoError(t, err)

	assert.Contains(t, url, "order_id=order-from-previous-process")
}

func TestButtonsApprove_MissingRelayEntryFails(t *testing.T) {
	f := newFixture(t, true)
	st := f.begin(t, domain.PaymentMethodPayPal)
	cb, _ := f.buttons.Callbacks(st.ID)

	_, err := cb.OnApprove(context.Background(), approvalFor("PAYPAL-789"))
	require.Error(t, err)
	assert.Equal(t, 0, f.carts.Clears())
	assert.Equal(t, 0, f.repo.Completes())
}

func TestButtonsError_AttemptStaysRetryable(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st := f.begin(t, domain.PaymentMethodPayPal)
	cb, _ := f.buttons.Callbacks(st.ID)

	_, err := cb.CreateOrder(ctx)
	require.NoError(t, err)
	cb.OnError(errBoom)

	got, _ := f.svc.Get(st.ID)
	assert.Equal(t, domain.CheckoutStatusFailed, got.Status)
	assert.Equal(t, "payment failed", got.Notice)
	assert.Equal(t, domain.WidgetButtonsReady, got.Widget, "buttons stay usable for a retry")

	// a full second attempt goes through
	_, err = cb.CreateOrder(ctx)
	require.NoError(t, err)
	_, err = cb.OnApprove(ctx, approvalFor("PAYPAL-789"))
	require.NoError(t, err)
}

func TestButtonsCancel_AttemptStaysRetryable(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st := f.begin(t, domain.PaymentMethodPayPal)
	cb, _ := f.buttons.Callbacks(st.ID)

	_, err := cb.CreateOrder(ctx)
	require.NoError(t, err)
	cb.OnCancel()

	got, _ := f.svc.Get(st.ID)
	assert.Equal(t, domain.CheckoutStatusCancelled, got.Status)
	assert.Equal(t, domain.WidgetButtonsReady, got.Widget, "buttons stay usable for a retry")

	// re-clicking the still-mounted buttons starts a fresh attempt
	_, err = cb.CreateOrder(ctx)
	require.NoError(t, err)
	_, err = cb.OnApprove(ctx, approvalFor("PAYPAL-789"))
	require.NoError(t, err)
}

func TestButtonsCancel_DistinctNotice(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st := f.begin(t, domain.PaymentMethodPayPal)
	cb, _ := f.buttons.Callbacks(st.ID)

	_, err := cb.CreateOrder(ctx)
	require.NoError(t, err)
	cb.OnCancel()

	got, _ := f.svc.Get(st.ID)
	assert.Equal(t, domain.CheckoutStatusCancelled, got.Status)
	assert.Equal(t, "payment cancelled by user", got.Notice)
}

func TestGuard_UnauthenticatedLeavesImmediately(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st, err := f.svc.Begin(ctx, "user-1", "key-1")
	require.NoError(t, err)
	f.svc.sessions[st.ID].UserID = ""

	verdict, err := f.svc.AwaitLeave(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, GuardLeaveLogin, verdict)
}

func TestGuard_NonEmptyCartStays(t *testing.T) {
	f := newFixture(t, true)
	st := f.begin(t, domain.PaymentMethodCard)

	verdict, err := f.svc.AwaitLeave(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, GuardStay, verdict)
}

func TestGuard_EmptyCartWaitsForHydrationThenStays(t *testing.T) {
	// The snapshot looked empty only because the store had not hydrated;
	// once it does, the user stays.
	f := newFixture(t, true)
	ctx := context.Background()
	st := f.begin(t, domain.PaymentMethodCard)

	f.svc.sessions[st.ID].mu.Lock()
	f.svc.sessions[st.ID].snapshot = &domain.CartSnapshot{}
	f.svc.sessions[st.ID].mu.Unlock()
	f.carts.MarkHydrated()

	verdict, err := f.svc.AwaitLeave(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, GuardStay, verdict)
}

func TestGuard_EmptyCartAfterHydrationLeaves(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	st := f.begin(t, domain.PaymentMethodCard)

	f.svc.sessions[st.ID].mu.Lock()
	f.svc.sessions[st.ID].snapshot = &domain.CartSnapshot{}
	f.svc.sessions[st.ID].mu.Unlock()
	f.carts.SetSnapshot(&domain.CartSnapshot{})
	f.carts.MarkHydrated()

	verdict, err := f.svc.AwaitLeave(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, GuardLeaveCart, verdict)
}

func TestGuard_ProcessingNeverLeaves(t *testing.T) {
	// Mid-payment the cart is legitimately empty; the guard must not bounce
	// the user off the page while the attempt finishes.
	f := newFixture(t, true)
	ctx := context.Background()
	st := f.begin(t, domain.PaymentMethodPayPal)
	cb, _ := f.buttons.Callbacks(st.ID)
	_, err := cb.CreateOrder(ctx)
	require.NoError(t, err)

	f.svc.sessions[st.ID].mu.Lock()
	f.svc.sessions[st.ID].snapshot = &domain.CartSnapshot{}
	f.svc.sessions[st.ID].mu.Unlock()
	f.carts.SetSnapshot(&domain.CartSnapshot{})
	f.carts.MarkHydrated()

	verdict, err := f.svc.AwaitLeave(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, GuardStay, verdict)
}

func TestDetach_TearsDownAndReattachReinitializes(t *testing.T) {
	f := newFixture(t, true)
	st := f.begin(t, domain.PaymentMethodPayPal)
	_, rendered := f.buttons.Callbacks(st.ID)
	require.True(t, rendered)

	f.svc.Detach(st.ID)
	_, rendered = f.buttons.Callbacks(st.ID)
	assert.False(t, rendered)

	f.svc.sessions[st.ID].mu.Lock()
	f.svc.sessions[st.ID].mounted = true
	f.svc.sessions[st.ID].mu.Unlock()
	_, err := f.svc.SelectPaymentMethod(context.Background(), st.ID, domain.PaymentMethodPayPal)
	require.NoError(t, err)
	_, rendered = f.buttons.Callbacks(st.ID)
	assert.True(t, rendered)
}
