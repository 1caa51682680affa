// Package paypal bridges the provider's buttons widget into the checkout
// flow. The widget drives a three-callback protocol: it asks for an order
// reference when the user clicks, reports approval after the provider's own
// UI, and reports error or cancel otherwise. The checkout service never calls
// these; the provider does.
package paypal

import "context"

// Approval is what the provider hands back after the buyer authorizes
// payment on its overlay.
type Approval struct {
	ProviderOrderID string `json:"paypal_order_id"`
	PayerID         string `json:"payer_id,omitempty"`
}

type Callbacks struct {
	// CreateOrder must return the provider-side order reference. Returning
	// an error aborts the whole attempt; the widget surfaces it through its
	// own error path.
	CreateOrder func(ctx context.Context) (providerOrderID string, err error)
	// OnApprove finalizes the attempt and returns the success page URL.
	OnApprove func(ctx context.Context, a Approval) (redirectURL string, err error)
	OnError   func(err error)
	OnCancel  func()
}

// ButtonsProvider is the injected capability standing in for the
// script-loaded SDK global. Substituting a fake in tests is the point.
type ButtonsProvider interface {
	// Ready reports whether the SDK handshake has completed.
	Ready() bool
	// RenderButtons mounts the widget for a container, replacing any
	// previous mount for the same container.
	RenderButtons(containerID string, cb Callbacks) error
	// Unmount clears a container's mount, if any.
	Unmount(containerID string)
}
