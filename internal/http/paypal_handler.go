package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/KeyraGonzalez/tienda-checkout/internal/paypal"
)

// ButtonsMount resolves the callbacks of a rendered buttons widget.
type ButtonsMount interface {
	Mount(containerID string) (paypal.Callbacks, bool)
}

// PayPalHandler exposes the widget's three-callback protocol over HTTP. The
// provider-facing page posts each widget event here; the handler dispatches
// it to the callbacks registered for the session's mount.
type PayPalHandler struct {
	mounts  ButtonsMount
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewPayPalHandler(mounts ButtonsMount, timeout time.Duration, logger *zap.SugaredLogger) *PayPalHandler {
	return &PayPalHandler{mounts: mounts, timeout: timeout, logger: logger}
}

func (h *PayPalHandler) Routes(r chi.Router) {
	r.Post("/{id}/paypal/order", h.CreateOrder)
	r.Post("/{id}/paypal/approve", h.Approve)
	r.Post("/{id}/paypal/cancel", h.Cancel)
	r.Post("/{id}/paypal/error", h.Error)
}

type PayPalOrderResponseDTO struct {
	ProviderOrderID string `json:"paypal_order_id"`
}

type WidgetErrorRequestDTO struct {
	Message string `json:"message"`
}

func (h *PayPalHandler) callbacks(w http.ResponseWriter, r *http.Request) (paypal.Callbacks, bool) {
	cb, ok := h.mounts.Mount(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusConflict, "buttons_not_ready",
			"payment buttons are not rendered for this session")
	}
	return cb, ok
}

// POST /api/v1/checkout/{id}/paypal/order
func (h *PayPalHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cb, ok := h.callbacks(w, r)
	if !ok {
		return
	}

	providerOrderID, err := cb.CreateOrder(ctx)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, PayPalOrderResponseDTO{ProviderOrderID: providerOrderID})
}

// POST /api/v1/checkout/{id}/paypal/approve
func (h *PayPalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cb, ok := h.callbacks(w, r)
	if !ok {
		return
	}

	var approval paypal.Approval
	if err := json.NewDecoder(r.Body).Decode(&approval); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if approval.ProviderOrderID == "" {
		respondError(w, http.StatusBadRequest, "missing_paypal_order_id",
			"paypal_order_id is required")
		return
	}

	redirectURL, err := cb.OnApprove(ctx, approval)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, RedirectResponseDTO{URL: redirectURL})
}

// POST /api/v1/checkout/{id}/paypal/cancel
func (h *PayPalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	cb, ok := h.callbacks(w, r)
	if !ok {
		return
	}
	cb.OnCancel()
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/checkout/{id}/paypal/error
func (h *PayPalHandler) Error(w http.ResponseWriter, r *http.Request) {
	cb, ok := h.callbacks(w, r)
	if !ok {
		return
	}

	var req WidgetErrorRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Message == "" {
		req.Message = "provider reported an error"
	}

	cb.OnError(errors.New(req.Message))
	w.WriteHeader(http.StatusNoContent)
}
