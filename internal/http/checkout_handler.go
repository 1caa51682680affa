package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/KeyraGonzalez/tienda-checkout/internal/checkout"
	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
)

// CheckoutService is the slice of the orchestrator the HTTP layer drives.
type CheckoutService interface {
	Begin(ctx context.Context, userID, idempotencyKey string) (checkout.State, error)
	Get(id string) (checkout.State, error)
	SubmitShipping(ctx context.Context, id string, addr domain.ShippingAddress) (checkout.State, error)
	SelectPaymentMethod(ctx context.Context, id string, method domain.PaymentMethod) (checkout.State, error)
	PayWithCard(ctx context.Context, id string) (string, error)
	Detach(id string)
	AwaitLeave(ctx context.Context, id string) (checkout.GuardVerdict, error)
}

type CheckoutHandler struct {
	svc     CheckoutService
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewCheckoutHandler(svc CheckoutService, timeout time.Duration, logger *zap.SugaredLogger) *CheckoutHandler {
	return &CheckoutHandler{svc: svc, timeout: timeout, logger: logger}
}

func (h *CheckoutHandler) Routes(r chi.Router) {
	r.Post("/", h.Begin)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/shipping", h.SubmitShipping)
	r.Post("/{id}/payment-method", h.SelectPaymentMethod)
	r.Post("/{id}/card", h.PayWithCard)
	r.Post("/{id}/detach", h.Detach)
	r.Get("/{id}/guard", h.Guard)
}

type BeginCheckoutRequestDTO struct {
	IdempotencyKey string `json:"idempotency_key"`
}

type RedirectResponseDTO struct {
	URL string `json:"url"`
}

type GuardResponseDTO struct {
	Verdict checkout.GuardVerdict `json:"verdict"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req BeginCheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.IdempotencyKey == "" {
		respondError(w, http.StatusBadRequest, "missing_idempotency_key",
			"idempotency_key is required")
		return
	}

	state, err := h.svc.Begin(ctx, userID, req.IdempotencyKey)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, state)
}

// GET /api/v1/checkout/{id}
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Get(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// POST /api/v1/checkout/{id}/shipping
func (h *CheckoutHandler) SubmitShipping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var addr domain.ShippingAddress
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	state, err := h.svc.SubmitShipping(ctx, chi.URLParam(r, "id"), addr)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

type SelectPaymentMethodRequestDTO struct {
	Method domain.PaymentMethod `json:"method"`
}

// POST /api/v1/checkout/{id}/payment-method
func (h *CheckoutHandler) SelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SelectPaymentMethodRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	state, err := h.svc.SelectPaymentMethod(ctx, chi.URLParam(r, "id"), req.Method)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// POST /api/v1/checkout/{id}/card
func (h *CheckoutHandler) PayWithCard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	url, err := h.svc.PayWithCard(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, RedirectResponseDTO{URL: url})
}

// POST /api/v1/checkout/{id}/detach
func (h *CheckoutHandler) Detach(w http.ResponseWriter, r *http.Request) {
	h.svc.Detach(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/checkout/{id}/guard
//
// Long-polls until the redirect guard has an answer; the wait is bounded by
// the service's own grace delay.
func (h *CheckoutHandler) Guard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	verdict, err := h.svc.AwaitLeave(ctx, chi.URLParam(r, "id"))
	if err != nil {
		// a timed-out wait is still an answer: stay put
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			respondJSON(w, http.StatusOK, GuardResponseDTO{Verdict: checkout.GuardStay})
			return
		}
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, GuardResponseDTO{Verdict: verdict})
}
