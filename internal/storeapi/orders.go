package storeapi

import (
	"context"
	"encoding/json"

	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
)

type createOrderRequest struct {
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
}

// The backend sometimes wraps payloads in a data envelope and sometimes does
// not. Both shapes must be accepted; the exact field names are its contract.
type orderEnvelope struct {
	ID   string `json:"_id"`
	Data *struct {
		ID string `json:"_id"`
	} `json:"data"`
}

// CreateOrder turns a validated shipping address into a server-side order
// and returns its identifier. The caller must persist that identifier in the
// resumption relay before any redirect-based step, because in-memory state
// does not survive the hosted payment page.
func (c *Client) CreateOrder(ctx context.Context, addr domain.ShippingAddress) (string, error) {
	body, err := c.post(ctx, "/orders", createOrderRequest{ShippingAddress: addr})
	if err != nil {
		return "", err
	}

	var envelope orderEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", &SchemaError{Endpoint: "/orders", Field: "_id"}
	}

	id := envelope.ID
	if id == "" && envelope.Data != nil {
		id = envelope.Data.ID
	}
	if id == "" {
		c.logger.Errorw("order response missing id", "endpoint", "/orders")
		return "", &SchemaError{Endpoint: "/orders", Field: "_id"}
	}
	return id, nil
}
