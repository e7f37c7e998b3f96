package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
	"github.com/danfigueroa/loomi-sub000/shared/models"
)

// TransactionWriteRepository handles all state-mutating operations for
// transactions. It operates exclusively against the PostgreSQL write store
// (source of truth). Transactions are never deleted; status changes are the
// only mutation after creation.
type TransactionWriteRepository struct {
	db *sql.DB
}

func NewTransactionWriteRepository(db *sql.DB) *TransactionWriteRepository {
	return &TransactionWriteRepository{db: db}
}

func (r *TransactionWriteRepository) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, from_user_id, to_user_id, amount, description,
			status, type, external_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.FromUserID, tx.ToUserID, tx.Amount, nullString(tx.Description),
		tx.Status, tx.Type, tx.ExternalReference, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetByID fetches the write model for status transitions.
func (r *TransactionWriteRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `
		SELECT id, from_user_id, to_user_id, amount, description,
			   status, type, external_reference, created_at, updated_at, processed_at
		FROM transactions
		WHERE id = $1
	`
	var tx models.Transaction
	var description sql.NullString
	var processedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tx.ID, &tx.FromUserID, &tx.ToUserID, &tx.Amount, &description,
		&tx.Status, &tx.Type, &tx.ExternalReference,
		&tx.CreatedAt, &tx.UpdatedAt, &processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	tx.Description = description.String
	if processedAt.Valid {
		t := processedAt.Time
		tx.ProcessedAt = &t
	}
	return &tx, nil
}

// UpdateStatus persists a status transition. ProcessedAt is written only
// when set by the caller.
func (r *TransactionWriteRepository) UpdateStatus(ctx context.Context, tx *models.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $2, updated_at = $3, processed_at = $4
		WHERE id = $1
	`
	var processedAt sql.NullTime
	if tx.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *tx.ProcessedAt, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query, tx.ID, tx.Status, tx.UpdatedAt, processedAt)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, apperrors.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
