package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
	"github.com/KeyraGonzalez/tienda-checkout/internal/paypal"
	"github.com/KeyraGonzalez/tienda-checkout/internal/relay"
)

// ensureButtons runs the widget init gate. All five conditions must hold
// before a render is attempted:
//
//	SDK handshake complete, payment step reached, paypal selected,
//	attempt attached to a live page, cart snapshot non-empty.
//
// The gate is re-evaluated on every relevant change; an earlier failed
// render does not poison later attempts. The mount is cleared before every
// render so re-entry never stacks a second widget on the first.
func (s *Service) ensureButtons(sess *Session) {
	sess.mu.Lock()
	eligible := s.sdk.Ready() &&
		sess.step == domain.StepPayment &&
		sess.method == domain.PaymentMethodPayPal &&
		sess.mounted &&
		sess.UserID != "" &&
		!sess.snapshot.Empty()

	if !eligible {
		sess.mu.Unlock()
		s.buttons.Unmount(sess.ID)
		return
	}

	if sess.widget == domain.WidgetSDKNotLoaded {
		sess.widget = domain.WidgetSDKLoaded
	}
	if !sess.widget.CanTransitionTo(domain.WidgetButtonsInitializing) {
		// mid-payment or already succeeded; leave the widget alone
		sess.mu.Unlock()
		return
	}
	sess.widget = domain.WidgetButtonsInitializing
	sess.mu.Unlock()

	s.buttons.Unmount(sess.ID)
	if err := s.buttons.RenderButtons(sess.ID, s.callbacks(sess)); err != nil {
		s.logger.Errorw("failed to render payment buttons",
			"session_id", sess.ID, "error", err)
		sess.mu.Lock()
		sess.widget = domain.WidgetSDKLoaded
		sess.mu.Unlock()
		return
	}

	sess.mu.Lock()
	sess.widget = domain.WidgetButtonsReady
	sess.mu.Unlock()
	s.logger.Infow("payment buttons ready", "session_id", sess.ID)
}

// callbacks wires one checkout attempt into the provider's widget protocol.
func (s *Service) callbacks(sess *Session) paypal.Callbacks {
	return paypal.Callbacks{
		CreateOrder: func(ctx context.Context) (string, error) {
			return s.buttonsCreateOrder(ctx, sess)
		},
		OnApprove: func(ctx context.Context, a paypal.Approval) (string, error) {
			return s.buttonsApprove(ctx, sess, a)
		},
		OnError: func(err error) {
			s.buttonsError(sess, err)
		},
		OnCancel: func() {
			s.buttonsCancel(sess)
		},
	}
}

// buttonsCreateOrder backs the widget's create callback: validate, create
// the real order, persist its ID where the redirect return can find it, then
// open the provider-side order. An error anywhere aborts the attempt before
// the buyer sees the provider overlay.
func (s *Service) buttonsCreateOrder(ctx context.Context, sess *Session) (string, error) {
	sess.mu.Lock()
	addr := sess.address
	if !sess.widget.CanTransitionTo(domain.WidgetProcessing) {
		sess.mu.Unlock()
		return "", ErrIllegalTransition
	}
	sess.widget = domain.WidgetProcessing
	sess.cartCleared = false
	sess.mu.Unlock()

	fail := func(err error) (string, error) {
		s.failAttemptWidget(ctx, sess, "payment failed", err)
		return "", err
	}

	// Required-field validation happens before any network call; an
	// incomplete address must not leave an orphaned order behind.
	if addr == nil {
		return fail(ErrShippingIncomplete)
	}
	if err := addr.Validate(); err != nil {
		return fail(err)
	}

	if err := s.transition(ctx, sess, domain.CheckoutStatusProcessing); err != nil {
		return fail(err)
	}

	orderID, err := s.backend.CreateOrder(ctx, *addr)
	if err != nil {
		return fail(err)
	}
	if err := s.relay.Put(ctx, sess.ID, orderID); err != nil {
		return fail(err)
	}
	if err := s.repo.SetOrder(ctx, &sess.ID, &orderID); err != nil {
		s.logger.Errorw("failed to record order id", "session_id", sess.ID, "error", err)
	}

	sess.mu.Lock()
	sess.orderID = orderID
	sess.mu.Unlock()

	providerOrderID, err := s.backend.CreatePayPalOrder(ctx, orderID)
	if err != nil {
		return fail(err)
	}
	if err := s.repo.SetProviderOrder(ctx, &sess.ID, &providerOrderID); err != nil {
		s.logger.Errorw("failed to record provider order id",
			"session_id", sess.ID, "error", err)
	}

	sess.mu.Lock()
	sess.providerOrderID = providerOrderID
	sess.mu.Unlock()

	s.logger.Infow("provider order opened",
		"session_id", sess.ID, "order_id", orderID, "provider_order_id", providerOrderID)
	return providerOrderID, nil
}

// buttonsApprove backs the widget's approve callback. The pending order ID
// is read from the relay, never from this process: the approval may arrive
// after a restart or in a handler that never saw CreateOrder run.
func (s *Service) buttonsApprove(ctx context.Context, sess *Session, a paypal.Approval) (string, error) {
	orderID, err := s.relay.Get(ctx, sess.ID)
	if err != nil {
		// A finished attempt already dropped its relay entry; a repeat
		// delivery of the same approval resolves from the session instead.
		sess.mu.Lock()
		done := sess.status == domain.CheckoutStatusCompleted && sess.orderID != ""
		completedOrderID := sess.orderID
		sess.mu.Unlock()

		if !done || !errors.Is(err, relay.ErrNotFound) {
			s.failAttemptWidget(ctx, sess, "payment failed", err)
			return "", fmt.Errorf("no pending order for approval: %w", err)
		}
		orderID = completedOrderID
	}

	// Cart clear runs at most once per attempt even if the provider
	// delivers the approval twice.
	sess.mu.Lock()
	alreadyCleared := sess.cartCleared
	sess.cartCleared = true
	alreadyDone := sess.status == domain.CheckoutStatusCompleted
	sess.mu.Unlock()

	if !alreadyCleared {
		if err := s.carts.Clear(ctx, sess.UserID); err != nil {
			// The order is paid; a stale cart is recoverable, a lost
			// payment is not. Log and proceed.
			s.logger.Errorw("failed to clear cart after approval",
				"session_id", sess.ID, "user_id", sess.UserID, "error", err)
		}
	}

	if !alreadyDone {
		payload, perr := completionPayload(sess, orderID, a.ProviderOrderID)
		if perr != nil {
			s.logger.Errorw("failed to build completion payload",
				"session_id", sess.ID, "error", perr)
		}
		status := domain.CheckoutStatusCompleted
		if err := s.repo.CompleteCheckoutSession(ctx, &sess.ID, payload, &status); err != nil {
			s.logger.Errorw("failed to complete checkout session",
				"session_id", sess.ID, "error", err)
		}
	}

	sess.mu.Lock()
	sess.status = domain.CheckoutStatusCompleted
	sess.widget = domain.WidgetSucceeded
	sess.orderID = orderID
	sess.notice = ""
	sess.mu.Unlock()

	if err := s.relay.Drop(ctx, sess.ID); err != nil {
		s.logger.Warnw("failed to drop pending order relay",
			"session_id", sess.ID, "error", err)
	}

	s.logger.Infow("payment approved",
		"session_id", sess.ID, "order_id", orderID, "provider_order_id", a.ProviderOrderID)
	return fmt.Sprintf("%s/order-success?paypal_order_id=%s&order_id=%s&payment_method=paypal",
		s.successBaseURL, a.ProviderOrderID, orderID), nil
}

func (s *Service) buttonsError(sess *Session, err error) {
	s.logger.Warnw("provider reported payment error",
		"session_id", sess.ID, "error", err)
	s.failAttemptWidget(context.Background(), sess, "payment failed", err)
}

func (s *Service) buttonsCancel(sess *Session) {
	s.logger.Infow("buyer cancelled payment", "session_id", sess.ID)

	// Same widget reset as the error path: pass through CANCELLED, then land
	// back in BUTTONS_READY so the buyer can retry by re-clicking.
	sess.mu.Lock()
	sess.notice = "payment cancelled by user"
	if sess.widget.CanTransitionTo(domain.WidgetCancelled) {
		sess.widget = domain.WidgetCancelled
	}
	if sess.widget.CanTransitionTo(domain.WidgetButtonsReady) {
		sess.widget = domain.WidgetButtonsReady
	}
	sess.mu.Unlock()

	if err := s.transition(context.Background(), sess, domain.CheckoutStatusCancelled); err != nil {
		s.logger.Debugw("cancel outside an active attempt",
			"session_id", sess.ID, "error", err)
	}
}

// failAttemptWidget is failAttempt plus the widget-side rollback: the widget
// lands back in a renderable state so the buttons stay usable for a retry.
func (s *Service) failAttemptWidget(ctx context.Context, sess *Session, notice string, cause error) {
	sess.mu.Lock()
	sess.notice = notice
	if sess.widget.CanTransitionTo(domain.WidgetErrored) {
		sess.widget = domain.WidgetErrored
	}
	if sess.widget.CanTransitionTo(domain.WidgetButtonsReady) {
		sess.widget = domain.WidgetButtonsReady
	}
	sess.mu.Unlock()

	if err := s.transition(ctx, sess, domain.CheckoutStatusFailed); err != nil {
		s.logger.Debugw("failure outside an active attempt",
			"session_id", sess.ID, "error", err)
	}
	s.logger.Warnw("payment attempt failed", "session_id", sess.ID, "error", cause)
}

// completionEvent is the outbox payload written alongside the COMPLETED
// status flip.
type completionEvent struct {
	SessionID       string  `json:"session_id"`
	UserID          string  `json:"user_id"`
	OrderID         string  `json:"order_id"`
	ProviderOrderID string  `json:"provider_order_id,omitempty"`
	PaymentMethod   string  `json:"payment_method"`
	TotalAmount     float64 `json:"total_amount"`
}

func completionPayload(sess *Session, orderID, providerOrderID string) ([]byte, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return json.Marshal(completionEvent{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		OrderID:         orderID,
		ProviderOrderID: providerOrderID,
		PaymentMethod:   string(domain.PaymentMethodPayPal),
		TotalAmount:     sess.snapshot.Totals().Total,
	})
}
