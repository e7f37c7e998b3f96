package query

import (
	"context"
	"fmt"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
	"github.com/danfigueroa/loomi-sub000/shared/cqrs"
	"github.com/danfigueroa/loomi-sub000/shared/models"
	"github.com/danfigueroa/loomi-sub000/transaction-service/internal/repository"
)

// UserValidator confirms the listed user exists before the read store is
// queried on their behalf.
type UserValidator interface {
	ValidateUser(ctx context.Context, userID string) (*models.CustomerInfo, error)
}

// TransactionQueryService serves transaction reads out of the Redis-backed
// read repository.
type TransactionQueryService struct {
	readRepo *repository.TransactionReadRepository
	users    UserValidator
}

func NewTransactionQueryService(readRepo *repository.TransactionReadRepository, users UserValidator) *TransactionQueryService {
	return &TransactionQueryService{readRepo: readRepo, users: users}
}

func (s *TransactionQueryService) GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.TransactionView, error) {
	return s.readRepo.GetByID(ctx, q.TransactionID)
}

// ListUserTransactions returns one page of the user's transactions, newest
// first, with pagination metadata. The user is validated remotely before the
// read store is touched so unknown ids surface as NotFound rather than an
// empty page.
func (s *TransactionQueryService) ListUserTransactions(ctx context.Context, q cqrs.ListUserTransactionsQuery) ([]models.TransactionView, *models.Pagination, error) {
	if q.Page < 1 {
		return nil, nil, fmt.Errorf("page must be >= 1: %w", apperrors.ErrValidation)
	}
	if q.Limit < 1 || q.Limit > 100 {
		return nil, nil, fmt.Errorf("limit must be between 1 and 100: %w", apperrors.ErrValidation)
	}

	if _, err := s.users.ValidateUser(ctx, q.UserID); err != nil {
		return nil, nil, fmt.Errorf("user %s: %w", q.UserID, err)
	}

	views, total, err := s.readRepo.ListByUserID(ctx, q.UserID, int64(q.Page), int64(q.Limit))
	if err != nil {
		return nil, nil, err
	}
	return views, &models.Pagination{Page: q.Page, Limit: q.Limit, Total: total}, nil
}
