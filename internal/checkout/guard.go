package checkout

import (
	"context"
	"time"
)

// GuardVerdict is the redirect guard's answer for one evaluation.
type GuardVerdict string

const (
	// GuardStay keeps the user on the checkout page.
	GuardStay GuardVerdict = "stay"
	// GuardLeaveCart sends the user back to the cart page.
	GuardLeaveCart GuardVerdict = "leave_cart"
	// GuardLeaveLogin sends the user to the login page.
	GuardLeaveLogin GuardVerdict = "leave_login"
)

// AwaitLeave evaluates the checkout page's redirect guard. Unauthenticated
// users leave immediately. An empty cart only forces an exit after the first
// cart load has settled; until then the emptiness may just be a store that
// has not hydrated yet, and bouncing the user on that race is the one bug
// this guard exists to prevent. A payment in flight always wins: the cart is
// legitimately empty (or about to be) while an order is being finalized.
func (s *Service) AwaitLeave(ctx context.Context, id string) (GuardVerdict, error) {
	sess, err := s.session(id)
	if err != nil {
		return GuardLeaveCart, err
	}
	if sess.UserID == "" {
		return GuardLeaveLogin, nil
	}

	if !s.cartLooksEmpty(sess) || sess.processing() {
		return GuardStay, nil
	}

	// Wait for the hydration signal, bounded by the grace delay so a
	// backend that never answers cannot pin the user here.
	timer := time.NewTimer(s.graceDelay)
	defer timer.Stop()
	select {
	case <-s.carts.Hydrated(sess.UserID):
	case <-timer.C:
	case <-ctx.Done():
		return GuardStay, ctx.Err()
	}

	if sess.processing() {
		return GuardStay, nil
	}

	snapshot, err := s.carts.Get(ctx, sess.UserID)
	if err != nil {
		// Can't tell empty from unreachable; keep the user where they are.
		s.logger.Warnw("guard could not re-check cart",
			"session_id", sess.ID, "error", err)
		return GuardStay, nil
	}
	if snapshot.Empty() && !sess.processing() {
		return GuardLeaveCart, nil
	}

	sess.mu.Lock()
	sess.snapshot = snapshot
	sess.mu.Unlock()
	return GuardStay, nil
}

func (s *Service) cartLooksEmpty(sess *Session) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot.Empty()
}
