package command

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/danfigueroa/loomi-sub000/shared/cqrs"
	"github.com/danfigueroa/loomi-sub000/shared/models"
	"github.com/danfigueroa/loomi-sub000/shared/utils"
	"github.com/danfigueroa/loomi-sub000/user-service/internal/repository"
)

// EventEmitter is the slice of the event publisher the command side uses.
type EventEmitter interface {
	UserRegistered(ctx context.Context, user *models.User) error
	BankingDataUpdated(ctx context.Context, user *models.User) error
}

// UserCommandService writes user state to PostgreSQL and keeps the Redis
// read model up to date.
type UserCommandService struct {
	writeRepo *repository.UserWriteRepository
	readRepo  *repository.UserReadRepository
	publisher EventEmitter
	logger    *zap.SugaredLogger
}

func NewUserCommandService(
	writeRepo *repository.UserWriteRepository,
	readRepo *repository.UserReadRepository,
	publisher EventEmitter,
	logger *zap.SugaredLogger,
) *UserCommandService {
	return &UserCommandService{
		writeRepo: writeRepo,
		readRepo:  readRepo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *UserCommandService) RegisterUser(ctx context.Context, cmd cqrs.RegisterUserCommand) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		ID:          utils.GenerateID("usr"),
		Name:        cmd.Name,
		Email:       cmd.Email,
		PhoneNumber: cmd.PhoneNumber,
		Address:     cmd.Address,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.writeRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.readRepo.CacheUserView(ctx, userToView(user))

	// Registration events are best-effort telemetry; the publisher's policy
	// for user.registered decides whether a failure surfaces here.
	if err := s.publisher.UserRegistered(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserCommandService) UpdateUser(ctx context.Context, cmd cqrs.UpdateUserCommand) (*models.UserView, error) {
	user, err := s.writeRepo.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	user.Name = cmd.Name
	user.Email = cmd.Email
	user.PhoneNumber = cmd.PhoneNumber
	user.Address = cmd.Address
	user.UpdatedAt = time.Now().UTC()
	if err := s.writeRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	view := userToView(user)
	s.readRepo.CacheUserView(ctx, view)
	return view, nil
}

// UpdateBankingData replaces the user's bank agency/account pair and emits
// user.banking-data-updated.
func (s *UserCommandService) UpdateBankingData(ctx context.Context, cmd cqrs.UpdateBankingDataCommand) (*models.User, error) {
	user, err := s.writeRepo.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	user.BankAgency = cmd.BankAgency
	user.BankAccount = cmd.BankAccount
	user.UpdatedAt = time.Now().UTC()
	if err := s.writeRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	s.readRepo.CacheUserView(ctx, userToView(user))

	if err := s.publisher.BankingDataUpdated(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeactivateUser soft-deletes the user. Future party validations against
// this user fail as inactive.
func (s *UserCommandService) DeactivateUser(ctx context.Context, cmd cqrs.DeactivateUserCommand) error {
	if err := s.writeRepo.Deactivate(ctx, cmd.UserID); err != nil {
		return err
	}
	s.readRepo.InvalidateUserView(ctx, cmd.UserID)
	return nil
}

func userToView(u *models.User) *models.UserView {
	return &models.UserView{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
