package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/KeyraGonzalez/tienda-checkout/internal/checkout"
	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
	"github.com/KeyraGonzalez/tienda-checkout/internal/paypal"
	"github.com/KeyraGonzalez/tienda-checkout/internal/storeapi"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// encode errors mean the client is gone; nothing useful to do
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps the checkout error taxonomy onto HTTP statuses.
// Errors with no mapping are logged with the request ID before the generic
// 500 goes out.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.SugaredLogger, err error) {
	var addrErr *domain.AddressValidationError
	var validationErr *storeapi.ValidationError
	var netErr *storeapi.NetworkError
	var schemaErr *storeapi.SchemaError

	switch {
	case errors.As(err, &addrErr):
		respondError(w, http.StatusBadRequest, "invalid_address", addrErr.Error())
	case errors.Is(err, checkout.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", "checkout session not found")
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusConflict, "empty_cart", "cart is empty, nothing to checkout")
	case errors.Is(err, checkout.ErrPayPalSelected):
		respondError(w, http.StatusConflict, "paypal_selected", "card submission ignored while paypal is selected")
	case errors.Is(err, checkout.ErrNoPaymentMethod):
		respondError(w, http.StatusBadRequest, "no_payment_method", "select a payment method first")
	case errors.Is(err, checkout.ErrUnknownMethod):
		respondError(w, http.StatusBadRequest, "unknown_payment_method", "payment method must be card or paypal")
	case errors.Is(err, checkout.ErrShippingIncomplete):
		respondError(w, http.StatusBadRequest, "incomplete_shipping", "complete the shipping address first")
	case errors.Is(err, checkout.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_state", "operation not allowed in the current state")
	case errors.Is(err, paypal.ErrNotReady):
		respondError(w, http.StatusServiceUnavailable, "provider_unavailable", "payment provider is not ready")
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, "rejected_by_store", validationErr.Error())
	case errors.As(err, &schemaErr):
		respondError(w, http.StatusBadGateway, "bad_upstream_response", "store API returned an unexpected response")
	case errors.As(err, &netErr):
		respondError(w, http.StatusBadGateway, "upstream_unavailable", "store API is unreachable")
	default:
		logger.Errorw("unhandled checkout error",
			"request_id", getRequestID(r.Context()), "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
