package repository

import (
	"context"
	"database/sql"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
	"github.com/danfigueroa/loomi-sub000/shared/models"
	sharedredis "github.com/danfigueroa/loomi-sub000/shared/redis"
)

const (
	userViewKeyPrefix = "user:view:"
	userTxCountPrefix = "user:txcount:"
)

// UserReadRepository handles all read operations for users.
// It uses Redis as the primary read store, falling back to PostgreSQL on a miss.
type UserReadRepository struct {
	db     *sql.DB
	redis  *goredis.Client
	cache  *sharedredis.ViewCache[models.UserView]
	logger *zap.SugaredLogger
}

func NewUserReadRepository(db *sql.DB, redisClient *goredis.Client, logger *zap.SugaredLogger) *UserReadRepository {
	return &UserReadRepository{
		db:     db,
		redis:  redisClient,
		cache:  sharedredis.NewViewCache[models.UserView](redisClient, 0, logger),
		logger: logger,
	}
}

// GetByID returns a UserView from Redis first, then PostgreSQL.
func (r *UserReadRepository) GetByID(ctx context.Context, id string) (*models.UserView, error) {
	cacheKey := userViewKeyPrefix + id

	if view, ok := r.cache.Get(ctx, cacheKey); ok {
		return view, nil
	}

	// Fallback: PostgreSQL
	query := `
		SELECT id, name, email, phone_number, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var view models.UserView

	pgErr := r.db.QueryRowContext(ctx, query, id).Scan(
		&view.ID, &view.Name, &view.Email, &view.PhoneNumber,
		&view.IsActive, &view.CreatedAt, &view.UpdatedAt,
	)
	if pgErr == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	if pgErr != nil {
		return nil, fmt.Errorf("failed to get user: %w", pgErr)
	}

	view.TransactionCount = r.transactionCount(ctx, id)

	// Warm the cache
	r.CacheUserView(ctx, &view)
	return &view, nil
}

// CacheUserView stores or refreshes the Redis read model for a user.
// Called by the command service after every mutation.
func (r *UserReadRepository) CacheUserView(ctx context.Context, view *models.UserView) {
	r.cache.Set(ctx, userViewKeyPrefix+view.ID, view)
}

// InvalidateUserView removes the Redis read model entry for a user.
func (r *UserReadRepository) InvalidateUserView(ctx context.Context, userID string) {
	r.cache.Delete(ctx, userViewKeyPrefix+userID)
}

// IncrTransactionCount bumps the per-user transaction counter. Driven by
// transaction.created events; the view entry is invalidated so the next read
// picks the new count up.
func (r *UserReadRepository) IncrTransactionCount(ctx context.Context, userID string) {
	if err := r.redis.Incr(ctx, userTxCountPrefix+userID).Err(); err != nil {
		r.logger.Warnw("failed to bump transaction count", "userId", userID, "error", err)
		return
	}
	r.InvalidateUserView(ctx, userID)
}

func (r *UserReadRepository) transactionCount(ctx context.Context, userID string) int64 {
	count, err := r.redis.Get(ctx, userTxCountPrefix+userID).Int64()
	if err != nil {
		return 0
	}
	return count
}
