package command

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
	"github.com/danfigueroa/loomi-sub000/shared/cqrs"
	"github.com/danfigueroa/loomi-sub000/shared/models"
	"github.com/danfigueroa/loomi-sub000/shared/utils"
)

// UserValidator confirms that a party exists and is active before a
// transaction touches the write store.
type UserValidator interface {
	ValidateUser(ctx context.Context, userID string) (*models.CustomerInfo, error)
}

// EventEmitter publishes transaction lifecycle events. Whether a publish
// failure aborts the command depends on the publisher's policy for the
// event type.
type EventEmitter interface {
	TransactionCreated(ctx context.Context, tx *models.Transaction) error
	TransactionProcessed(ctx context.Context, tx *models.Transaction) error
	TransactionCancelled(ctx context.Context, tx *models.Transaction) error
}

// TransactionStore is the write-model persistence used by the command side.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, tx *models.Transaction) error
}

// ViewCacher keeps the Redis read model in step with write-side changes.
type ViewCacher interface {
	CacheTransactionView(ctx context.Context, view *models.TransactionView)
	InvalidateTransactionView(ctx context.Context, id string)
}

// TransactionCommandService creates transactions and drives their status
// transitions. Invariant checks run before any remote call so invalid input
// never costs a network round trip.
type TransactionCommandService struct {
	writeRepo TransactionStore
	readRepo  ViewCacher
	users     UserValidator
	publisher EventEmitter
	logger    *zap.SugaredLogger
}

func NewTransactionCommandService(
	writeRepo TransactionStore,
	readRepo ViewCacher,
	users UserValidator,
	publisher EventEmitter,
	logger *zap.SugaredLogger,
) *TransactionCommandService {
	return &TransactionCommandService{
		writeRepo: writeRepo,
		readRepo:  readRepo,
		users:     users,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *TransactionCommandService) CreateTransaction(ctx context.Context, cmd cqrs.CreateTransactionCommand) (*models.Transaction, error) {
	if !cmd.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be greater than zero: %w", apperrors.ErrValidation)
	}
	if cmd.FromUserID == cmd.ToUserID {
		return nil, fmt.Errorf("cannot transfer to the same user: %w", apperrors.ErrSameUserTransfer)
	}
	if !models.ValidTransactionType(cmd.Type) {
		return nil, fmt.Errorf("unknown transaction type %q: %w", cmd.Type, apperrors.ErrValidation)
	}

	// Both parties must exist and be active. A failure here propagates
	// before anything is persisted, so there are no partial writes.
	if _, err := s.users.ValidateUser(ctx, cmd.FromUserID); err != nil {
		return nil, fmt.Errorf("from user %s: %w", cmd.FromUserID, err)
	}
	if _, err := s.users.ValidateUser(ctx, cmd.ToUserID); err != nil {
		return nil, fmt.Errorf("to user %s: %w", cmd.ToUserID, err)
	}

	now := time.Now().UTC()
	transaction := &models.Transaction{
		ID:                utils.GenerateID("txn"),
		FromUserID:        cmd.FromUserID,
		ToUserID:          cmd.ToUserID,
		Amount:            cmd.Amount.Round(2),
		Description:       cmd.Description,
		Status:            models.StatusPending,
		Type:              cmd.Type,
		ExternalReference: utils.NewExternalReference(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.writeRepo.Create(ctx, transaction); err != nil {
		return nil, err
	}
	s.readRepo.CacheTransactionView(ctx, txToView(transaction))

	if err := s.publisher.TransactionCreated(ctx, transaction); err != nil {
		return nil, err
	}

	s.logger.Infow("transaction created",
		"transactionId", transaction.ID,
		"fromUserId", transaction.FromUserID,
		"toUserId", transaction.ToUserID,
		"amount", transaction.Amount.StringFixed(2),
	)
	return transaction, nil
}

// ProcessTransaction moves a transaction from PENDING to PROCESSING and
// stamps processedAt. Any other current status is rejected.
func (s *TransactionCommandService) ProcessTransaction(ctx context.Context, cmd cqrs.ProcessTransactionCommand) (*models.Transaction, error) {
	return s.transition(ctx, cmd.TransactionID, models.StatusProcessing, s.publisher.TransactionProcessed)
}

// CancelTransaction moves a PENDING or PROCESSING transaction to CANCELLED.
// COMPLETED and already-cancelled transactions are rejected.
func (s *TransactionCommandService) CancelTransaction(ctx context.Context, cmd cqrs.CancelTransactionCommand) (*models.Transaction, error) {
	return s.transition(ctx, cmd.TransactionID, models.StatusCancelled, s.publisher.TransactionCancelled)
}

func (s *TransactionCommandService) transition(
	ctx context.Context,
	id string,
	target models.TransactionStatus,
	emit func(context.Context, *models.Transaction) error,
) (*models.Transaction, error) {
	transaction, err := s.writeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transaction.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("cannot move transaction %s from %s to %s: %w",
			id, transaction.Status, target, apperrors.ErrInvalidState)
	}

	now := time.Now().UTC()
	transaction.Status = target
	transaction.UpdatedAt = now
	if target == models.StatusProcessing {
		transaction.ProcessedAt = &now
	}

	if err := s.writeRepo.UpdateStatus(ctx, transaction); err != nil {
		return nil, err
	}
	s.readRepo.InvalidateTransactionView(ctx, transaction.ID)
	s.readRepo.CacheTransactionView(ctx, txToView(transaction))

	if err := emit(ctx, transaction); err != nil {
		return nil, err
	}

	s.logger.Infow("transaction status changed", "transactionId", transaction.ID, "status", transaction.Status)
	return transaction, nil
}

// txToView converts the write model to the read view model.
func txToView(t *models.Transaction) *models.TransactionView {
	return &models.TransactionView{
		ID:                t.ID,
		FromUserID:        t.FromUserID,
		ToUserID:          t.ToUserID,
		Amount:            t.Amount,
		Description:       t.Description,
		Status:            t.Status,
		Type:              t.Type,
		ExternalReference: t.ExternalReference,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		ProcessedAt:       t.ProcessedAt,
	}
}
