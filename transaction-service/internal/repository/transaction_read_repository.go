package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
	"github.com/danfigueroa/loomi-sub000/shared/models"
	sharedredis "github.com/danfigueroa/loomi-sub000/shared/redis"
)

const transactionViewKeyPrefix = "transaction:view:"

const transactionViewTTL = 15 * time.Minute

// TransactionReadRepository handles all read operations for transactions.
// It uses Redis as the primary read store, falling back to PostgreSQL on a miss.
type TransactionReadRepository struct {
	db     *sql.DB
	cache  *sharedredis.ViewCache[models.TransactionView]
	logger *zap.SugaredLogger
}

func NewTransactionReadRepository(db *sql.DB, redisClient *goredis.Client, logger *zap.SugaredLogger) *TransactionReadRepository {
	return &TransactionReadRepository{
		db:     db,
		cache:  sharedredis.NewViewCache[models.TransactionView](redisClient, transactionViewTTL, logger),
		logger: logger,
	}
}

// GetByID returns a TransactionView by attempting Redis first, then PostgreSQL.
// A miss on both stores returns apperrors.ErrNotFound.
func (r *TransactionReadRepository) GetByID(ctx context.Context, id string) (*models.TransactionView, error) {
	cacheKey := transactionViewKeyPrefix + id
	if view, ok := r.cache.Get(ctx, cacheKey); ok {
		return view, nil
	}

	// Fallback: PostgreSQL
	query := `
		SELECT id, from_user_id, to_user_id, amount, description,
			   status, type, external_reference, created_at, updated_at, processed_at
		FROM transactions
		WHERE id = $1
	`
	view, err := r.scanView(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	// Warm the cache for subsequent reads.
	r.cache.Set(ctx, cacheKey, view)
	return view, nil
}

// ListByUserID returns a page of transactions where the user is either party,
// newest first, together with the total match count for pagination metadata.
func (r *TransactionReadRepository) ListByUserID(ctx context.Context, userID string, page, limit int64) ([]models.TransactionView, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM transactions WHERE from_user_id = $1 OR to_user_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `
		SELECT id, from_user_id, to_user_id, amount, description,
			   status, type, external_reference, created_at, updated_at, processed_at
		FROM transactions
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	offset := (page - 1) * limit
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	views := make([]models.TransactionView, 0, limit)
	for rows.Next() {
		view, err := r.scanView(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		views = append(views, *view)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return views, total, nil
}

// CacheTransactionView writes a view into Redis so reads immediately after a
// write do not hit PostgreSQL.
func (r *TransactionReadRepository) CacheTransactionView(ctx context.Context, view *models.TransactionView) {
	r.cache.Set(ctx, transactionViewKeyPrefix+view.ID, view)
}

// InvalidateTransactionView drops the cached view after a status change.
func (r *TransactionReadRepository) InvalidateTransactionView(ctx context.Context, id string) {
	r.cache.Delete(ctx, transactionViewKeyPrefix+id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TransactionReadRepository) scanView(row rowScanner) (*models.TransactionView, error) {
	var view models.TransactionView
	var description sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(
		&view.ID, &view.FromUserID, &view.ToUserID, &view.Amount, &description,
		&view.Status, &view.Type, &view.ExternalReference,
		&view.CreatedAt, &view.UpdatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	view.Description = description.String
	if processedAt.Valid {
		t := processedAt.Time
		view.ProcessedAt = &t
	}
	return &view, nil
}
