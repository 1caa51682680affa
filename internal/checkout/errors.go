package checkout

import "errors"

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrIllegalTransition  = errors.New("illegal transition of checkout status")
	ErrSessionNotFound    = errors.New("checkout session not found")
	ErrNoPaymentMethod    = errors.New("no payment method selected")
	ErrUnknownMethod      = errors.New("unknown payment method")
	ErrPayPalSelected     = errors.New("card submission ignored while paypal is selected")
	ErrShippingIncomplete = errors.New("shipping information is incomplete")
)
