package storeapi

import (
	"context"
	"encoding/json"
)

type paymentRequest struct {
	OrderID string `json:"orderId"`
}

type sessionEnvelope struct {
	URL  string `json:"url"`
	Data *struct {
		URL string `json:"url"`
	} `json:"data"`
}

type paypalOrderEnvelope struct {
	OrderID string `json:"orderId"`
	Data    *struct {
		OrderID string `json:"orderId"`
	} `json:"data"`
}

// CreateCheckoutSession mints a hosted card-payment session for an existing
// order and returns the page URL. Navigating to it is terminal for the
// caller: control passes to the hosted page.
func (c *Client) CreateCheckoutSession(ctx context.Context, orderID string) (string, error) {
	body, err := c.post(ctx, "/payments/checkout-session", paymentRequest{OrderID: orderID})
	if err != nil {
		return "", err
	}

	var envelope sessionEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", &SchemaError{Endpoint: "/payments/checkout-session", Field: "url"}
	}

	url := envelope.URL
	if url == "" && envelope.Data != nil {
		url = envelope.Data.URL
	}
	if url == "" {
		c.logger.Errorw("checkout session response missing url",
			"endpoint", "/payments/checkout-session", "order_id", orderID)
		return "", &SchemaError{Endpoint: "/payments/checkout-session", Field: "url"}
	}
	return url, nil
}

// CreatePayPalOrder mints the provider-side order reference tied to an
// internal order. The buttons widget expects this reference back from its
// create-order callback.
func (c *Client) CreatePayPalOrder(ctx context.Context, orderID string) (string, error) {
	body, err := c.post(ctx, "/payments/paypal-order", paymentRequest{OrderID: orderID})
	if err != nil {
		return "", err
	}

	var envelope paypalOrderEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", &SchemaError{Endpoint: "/payments/paypal-order", Field: "orderId"}
	}

	id := envelope.OrderID
	if id == "" && envelope.Data != nil {
		id = envelope.Data.OrderID
	}
	if id == "" {
		c.logger.Errorw("paypal order response missing orderId",
			"endpoint", "/payments/paypal-order", "order_id", orderID)
		return "", &SchemaError{Endpoint: "/payments/paypal-order", Field: "orderId"}
	}
	return id, nil
}
