package storeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
)

type cartItemDTO struct {
	Product struct {
		ID    string  `json:"_id"`
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	} `json:"product"`
	Quantity int32  `json:"quantity"`
	Size     string `json:"size,omitempty"`
}

type cartEnvelope struct {
	Items       []cartItemDTO `json:"items"`
	TotalAmount float64       `json:"totalAmount"`
	Data        *struct {
		Items       []cartItemDTO `json:"items"`
		TotalAmount float64       `json:"totalAmount"`
	} `json:"data"`
}

// GetCart fetches the user's cart and freezes it into a snapshot. An absent
// cart comes back as an empty snapshot, not an error.
func (c *Client) GetCart(ctx context.Context, userID string) (*domain.CartSnapshot, error) {
	body, err := c.do(ctx, http.MethodGet, "/cart?userId="+userID, nil)
	if err != nil {
		return nil, err
	}

	var envelope cartEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &SchemaError{Endpoint: "/cart", Field: "items"}
	}

	items, total := envelope.Items, envelope.TotalAmount
	if items == nil && envelope.Data != nil {
		items, total = envelope.Data.Items, envelope.Data.TotalAmount
	}

	snapshot := &domain.CartSnapshot{
		Items:       make([]domain.CartSnapshotItem, 0, len(items)),
		TotalAmount: total,
		Currency:    "USD",
		CapturedAt:  time.Now(),
	}
	for _, item := range items {
		snapshot.Items = append(snapshot.Items, domain.CartSnapshotItem{
			ProductID:   item.Product.ID,
			ProductName: item.Product.Name,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitPrice:   item.Product.Price,
			Subtotal:    item.Product.Price * float64(item.Quantity),
		})
	}
	return snapshot, nil
}

// ClearCart deletes the user's cart on the backend.
func (c *Client) ClearCart(ctx context.Context, userID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/cart?userId="+userID, nil); err != nil {
		return fmt.Errorf("clear cart for user %s: %w", userID, err)
	}
	return nil
}
