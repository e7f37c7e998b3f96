package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danfigueroa/loomi-sub000/shared/broker"
)

// EnvelopeHandler processes one decoded event envelope.
type EnvelopeHandler func(ctx context.Context, envelope Envelope) error

// HandlerFor adapts an EnvelopeHandler to the broker's raw message handler,
// taking care of envelope decoding. Undecodable messages are rejected
// (and, per broker policy, dropped rather than requeued).
func HandlerFor(handler EnvelopeHandler) broker.Handler {
	return func(ctx context.Context, body []byte) error {
		var envelope Envelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		return handler(ctx, envelope)
	}
}
