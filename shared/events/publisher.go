package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
	"github.com/danfigueroa/loomi-sub000/shared/broker"
	"github.com/danfigueroa/loomi-sub000/shared/correlation"
	"github.com/danfigueroa/loomi-sub000/shared/models"
)

// Policy decides what a publish failure does to the triggering operation.
type Policy int

const (
	// PolicyBestEffort logs the failure and lets the operation proceed.
	PolicyBestEffort Policy = iota
	// PolicyAbort propagates ErrPublishFailed to the caller.
	PolicyAbort
)

// Wire is the transport the publisher pushes envelopes through.
type Wire interface {
	Publish(ctx context.Context, exchange, routingKey string, body any, opts broker.PublishOptions) error
}

// Publisher builds typed event envelopes and routes them to their exchange.
// The failure policy is configured per event type at construction; event
// types without an entry default to PolicyBestEffort.
type Publisher struct {
	wire     Wire
	logger   *zap.SugaredLogger
	policies map[string]Policy
}

func NewPublisher(wire Wire, logger *zap.SugaredLogger, policies map[string]Policy) *Publisher {
	if policies == nil {
		policies = map[string]Policy{}
	}
	return &Publisher{wire: wire, logger: logger, policies: policies}
}

func (p *Publisher) TransactionCreated(ctx context.Context, tx *models.Transaction) error {
	return p.emit(ctx, broker.TransactionsExchange, TransactionCreated, tx.ID, TransactionCreatedEvent{
		TransactionID:     tx.ID,
		FromUserID:        tx.FromUserID,
		ToUserID:          tx.ToUserID,
		Amount:            tx.Amount.StringFixed(2),
		Type:              string(tx.Type),
		ExternalReference: tx.ExternalReference,
	})
}

func (p *Publisher) TransactionProcessed(ctx context.Context, tx *models.Transaction) error {
	return p.emit(ctx, broker.TransactionsExchange, TransactionProcessed, tx.ID, TransactionProcessedEvent{
		TransactionID: tx.ID,
		Status:        string(tx.Status),
	})
}

func (p *Publisher) TransactionCancelled(ctx context.Context, tx *models.Transaction) error {
	return p.emit(ctx, broker.TransactionsExchange, TransactionCancelled, tx.ID, TransactionCancelledEvent{
		TransactionID: tx.ID,
		Status:        string(tx.Status),
	})
}

func (p *Publisher) UserRegistered(ctx context.Context, user *models.User) error {
	return p.emit(ctx, broker.UsersExchange, UserRegistered, user.ID, UserRegisteredEvent{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})
}

func (p *Publisher) BankingDataUpdated(ctx context.Context, user *models.User) error {
	return p.emit(ctx, broker.UsersExchange, BankingDataUpdated, user.ID, BankingDataUpdatedEvent{
		UserID:      user.ID,
		BankAgency:  user.BankAgency,
		BankAccount: user.BankAccount,
	})
}

func (p *Publisher) emit(ctx context.Context, exchange, eventType, entityID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", eventType, err)
	}

	correlationID := correlation.From(ctx)
	envelope := Envelope{
		EventType:     eventType,
		EntityID:      entityID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Payload:       data,
	}

	err = p.wire.Publish(ctx, exchange, eventType, envelope, broker.PublishOptions{
		CorrelationID: correlationID,
	})
	if err == nil {
		return nil
	}

	if p.policies[eventType] == PolicyAbort {
		return fmt.Errorf("%s: %w: %w", eventType, apperrors.ErrPublishFailed, err)
	}

	p.logger.Warnw("event publish failed, continuing",
		"eventType", eventType, "entityId", entityID, "error", err)

	return nil
}
