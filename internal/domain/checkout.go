package domain

type CheckoutStatus string

const (
	CheckoutStatusActive     CheckoutStatus = "ACTIVE"
	CheckoutStatusProcessing CheckoutStatus = "PROCESSING"
	CheckoutStatusCompleted  CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed     CheckoutStatus = "FAILED"
	CheckoutStatusCancelled  CheckoutStatus = "CANCELLED"
)

// IsTerminal reports whether no further payment attempt is possible.
// FAILED and CANCELLED are retryable: the user keeps the form and may
// re-submit.
func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusActive:     {CheckoutStatusProcessing},
	CheckoutStatusProcessing: {CheckoutStatusCompleted, CheckoutStatusFailed, CheckoutStatusCancelled},
	CheckoutStatusFailed:     {CheckoutStatusProcessing},
	CheckoutStatusCancelled:  {CheckoutStatusProcessing},
}

func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, allowed := range checkoutTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type CheckoutStep int

const (
	StepShipping CheckoutStep = 1
	StepPayment  CheckoutStep = 2
)

type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodPayPal PaymentMethod = "paypal"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCard || m == PaymentMethodPayPal
}
