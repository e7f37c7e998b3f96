package command

import (
	"context"
	"fmt"

	"github.com/danfigueroa/loomi-sub000/shared/events"
)

// HandleTransactionEvent consumes transaction.created from the broker queue
// and keeps the per-user transaction counters in the read model current.
// Returning an error rejects the message without requeue.
func (s *UserCommandService) HandleTransactionEvent(ctx context.Context, envelope events.Envelope) error {
	if envelope.EventType != events.TransactionCreated {
		s.logger.Debugw("ignoring event", "eventType", envelope.EventType)
		return nil
	}

	var payload events.TransactionCreatedEvent
	if err := envelope.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decode transaction.created payload: %w", err)
	}

	s.logger.Infow("transaction created",
		"transactionId", payload.TransactionID,
		"fromUserId", payload.FromUserID,
		"toUserId", payload.ToUserID,
		"correlationId", envelope.CorrelationID,
	)

	s.readRepo.IncrTransactionCount(ctx, payload.FromUserID)
	if payload.ToUserID != payload.FromUserID {
		s.readRepo.IncrTransactionCount(ctx, payload.ToUserID)
	}
	return nil
}
