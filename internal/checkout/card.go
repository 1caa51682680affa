package checkout

import (
	"context"

	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
)

// PayWithCard creates the order and a hosted payment session, returning the
// URL to navigate to. The navigation is terminal for the page: once the
// caller follows it, control belongs to the hosted page and nothing here
// matters until the success or cancel return.
//
// Submitting while paypal is selected is a guarded no-op: the buttons
// widget owns that submission path entirely, even if a form submit event
// still fires.
func (s *Service) PayWithCard(ctx context.Context, id string) (string, error) {
	sess, err := s.session(id)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	method := sess.method
	addr := sess.address
	sess.mu.Unlock()

	switch method {
	case domain.PaymentMethodPayPal:
		return "", ErrPayPalSelected
	case domain.PaymentMethodCard:
	default:
		return "", ErrNoPaymentMethod
	}

	if addr == nil {
		return "", ErrShippingIncomplete
	}
	if err := addr.Validate(); err != nil {
		return "", err
	}

	sess.mu.Lock()
	sess.orderInFlight = true
	sess.mu.Unlock()
	defer func() {
		// the loading flag always resets, success or failure; the UI must
		// never be stuck in a spinner
		sess.mu.Lock()
		sess.orderInFlight = false
		sess.mu.Unlock()
	}()

	if err := s.transition(ctx, sess, domain.CheckoutStatusProcessing); err != nil {
		return "", err
	}

	orderID, err := s.backend.CreateOrder(ctx, *addr)
	if err != nil {
		s.failAttempt(ctx, sess, "payment failed", err)
		return "", err
	}

	// Persist the order ID where it survives the upcoming full-page
	// navigation before anything else happens.
	if err := s.relay.Put(ctx, sess.ID, orderID); err != nil {
		s.failAttempt(ctx, sess, "payment failed", err)
		return "", err
	}
	if err := s.repo.SetOrder(ctx, &sess.ID, &orderID); err != nil {
		s.logger.Errorw("failed to record order id", "session_id", sess.ID, "error", err)
	}

	sess.mu.Lock()
	sess.orderID = orderID
	sess.mu.Unlock()

	url, err := s.backend.CreateCheckoutSession(ctx, orderID)
	if err != nil {
		s.failAttempt(ctx, sess, "payment failed", err)
		return "", err
	}

	s.logger.Infow("hosted checkout session created",
		"session_id", sess.ID, "order_id", orderID)
	return url, nil
}

// failAttempt rolls the attempt into its retryable failed state. The form
// stays submittable; no operation leaves it disabled or corrupted.
func (s *Service) failAttempt(ctx context.Context, sess *Session, notice string, cause error) {
	s.logger.Warnw("checkout attempt failed",
		"session_id", sess.ID, "error", cause)

	sess.mu.Lock()
	sess.notice = notice
	sess.mu.Unlock()

	if err := s.transition(ctx, sess, domain.CheckoutStatusFailed); err != nil {
		s.logger.Errorw("failed to record attempt failure",
			"session_id", sess.ID, "error", err)
	}
}
