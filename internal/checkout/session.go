package checkout

import (
	"sync"

	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
)

// Session is one checkout attempt. Durable fields are mirrored to the
// repository; everything else is per-process and rebuilt on demand. The
// relay, not this struct, is authoritative for the pending order ID:
// redirect-based payment paths outlive any in-memory state.
type Session struct {
	ID     string
	UserID string

	mu              sync.Mutex
	step            domain.CheckoutStep
	method          domain.PaymentMethod
	address         *domain.ShippingAddress
	snapshot        *domain.CartSnapshot
	status          domain.CheckoutStatus
	widget          domain.WidgetState
	orderID         string
	providerOrderID string
	notice          string
	mounted         bool
	cartCleared     bool
	orderInFlight   bool
}

// processing reports whether a payment attempt is actively under way. The
// empty-cart redirect guard must not fire during this window: the cart is
// legitimately about to be (or just was) cleared.
func (s *Session) processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == domain.CheckoutStatusProcessing ||
		s.widget == domain.WidgetProcessing ||
		s.orderInFlight
}

// State is the read-only view handed to the HTTP layer.
type State struct {
	ID       string               `json:"id"`
	Step     domain.CheckoutStep  `json:"step"`
	Method   domain.PaymentMethod `json:"payment_method,omitempty"`
	Status   domain.CheckoutStatus `json:"status"`
	Widget   domain.WidgetState   `json:"widget_state"`
	Totals   domain.Totals        `json:"totals"`
	Notice   string               `json:"notice,omitempty"`
	SDKReady bool                 `json:"sdk_ready"`
}

func (s *Session) state(sdkReady bool) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ID:       s.ID,
		Step:     s.step,
		Method:   s.method,
		Status:   s.status,
		Widget:   s.widget,
		Totals:   s.snapshot.Totals(),
		Notice:   s.notice,
		SDKReady: sdkReady,
	}
}
