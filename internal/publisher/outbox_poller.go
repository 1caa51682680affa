// Package publisher drains the checkout outbox into kafka and sweeps up
// payment attempts the process lost track of mid-redirect.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/KeyraGonzalez/tienda-checkout/internal/domain"
	r "github.com/KeyraGonzalez/tienda-checkout/internal/repository"
)

type OutboxPoller struct {
	eventTick    time.Duration
	recoveryTick time.Duration
	repo         r.RepoInterface
	writer       *kafka.Writer
	logger       *zap.SugaredLogger
}

func NewOutboxPoller(repo r.RepoInterface, logger *zap.SugaredLogger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "checkout-completed",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		eventTick:    time.Second,
		recoveryTick: time.Second * 5,
		repo:         repo,
		writer:       w,
		logger:       logger,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStuckSessions(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, 100)
	if err != nil {
		p.logger.Errorw("failed to fetch outbox events", "error", err)
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.logger.Errorw("failed to publish outbox event",
				"event_id", event.ID, "error", err)
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Errorw("failed to mark event as processed",
				"event_id", event.ID, "error", err)
			continue
		}
	}
}

// recoverStuckSessions completes attempts the buyer approved but the handler
// never finished: status PROCESSING with a provider order already opened and
// no progress for a while. Completing them writes the outbox event that the
// approval handler would have written.
func (p *OutboxPoller) recoverStuckSessions(ctx context.Context) {
	sessions, err := p.repo.GetStuckSessions(ctx)
	if err != nil {
		p.logger.Errorw("failed to get stuck sessions", "error", err)
		return
	}
	for _, session := range sessions {
		p.logger.Infow("recovering stuck session", "session_id", session.ID)

		var snapshot domain.CartSnapshot
		if err := json.Unmarshal(session.CartSnapshot, &snapshot); err != nil {
			p.logger.Errorw("failed to unmarshal cart snapshot",
				"session_id", session.ID, "error", err)
			continue
		}

		payload := map[string]interface{}{
			"session_id":        session.ID,
			"user_id":           session.UserID,
			"order_id":          session.OrderID,
			"provider_order_id": session.ProviderOrderID,
			"payment_method":    session.PaymentMethod,
			"items":             snapshot.Items,
			"total_amount":      session.TotalAmount,
			"currency":          snapshot.Currency,
			"completed_at":      session.UpdatedAt,
			"recovered":         true,
		}

		payloadJSON, err := json.Marshal(payload)
		if err != nil {
			p.logger.Errorw("failed to marshal recovery payload",
				"session_id", session.ID, "error", err)
			continue
		}

		completed := domain.CheckoutStatusCompleted
		if err := p.repo.CompleteCheckoutSession(ctx, &session.ID, payloadJSON, &completed); err != nil {
			p.logger.Errorw("failed to complete stuck session",
				"session_id", session.ID, "error", err)
			continue
		}

		p.logger.Infow("session recovered", "session_id", session.ID)
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *r.OutboxEvent) error {
	msg := kafka.Message{
		// session ID keys the partition so events for one attempt stay ordered
		Key:   []byte(event.AggregateId),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
