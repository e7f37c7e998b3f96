package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
	"github.com/danfigueroa/loomi-sub000/shared/cqrs"
	"github.com/danfigueroa/loomi-sub000/shared/middleware"
	"github.com/danfigueroa/loomi-sub000/shared/models"
)

// UserCommander defines the write-side operations used by UserHandler.
type UserCommander interface {
	RegisterUser(ctx context.Context, cmd cqrs.RegisterUserCommand) (*models.User, error)
	UpdateUser(ctx context.Context, cmd cqrs.UpdateUserCommand) (*models.UserView, error)
	UpdateBankingData(ctx context.Context, cmd cqrs.UpdateBankingDataCommand) (*models.User, error)
	DeactivateUser(ctx context.Context, cmd cqrs.DeactivateUserCommand) error
}

// UserQuerier defines the read-side operations used by UserHandler.
type UserQuerier interface {
	GetUser(ctx context.Context, q cqrs.GetUserQuery) (*models.UserView, error)
}

// UserHandler routes requests to the command or query service as appropriate.
type UserHandler struct {
	commands UserCommander
	queries  UserQuerier
}

type RegisterUserRequest struct {
	Name        string         `json:"name" validate:"required"`
	Email       string         `json:"email" validate:"required,email"`
	PhoneNumber string         `json:"phoneNumber" validate:"required"`
	Address     models.Address `json:"address" validate:"required"`
}

type UpdateUserRequest struct {
	Name        string         `json:"name" validate:"required"`
	Email       string         `json:"email" validate:"required,email"`
	PhoneNumber string         `json:"phoneNumber" validate:"required"`
	Address     models.Address `json:"address" validate:"required"`
}

type UpdateBankingDataRequest struct {
	BankAgency  string `json:"bankAgency" validate:"required"`
	BankAccount string `json:"bankAccount" validate:"required"`
}

func NewUserHandler(commands UserCommander, queries UserQuerier) *UserHandler {
	return &UserHandler{commands: commands, queries: queries}
}

func (h *UserHandler) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	user, err := h.commands.RegisterUser(c.Request.Context(), cqrs.RegisterUserCommand{
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
	})
	if err != nil {
		respondUserError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	view, err := h.queries.GetUser(c.Request.Context(), cqrs.GetUserQuery{
		UserID: c.Param("id"),
	})
	if err != nil {
		respondUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// callerOwns checks the authenticated caller against the target user id.
// Mutations are only allowed on the caller's own record.
func callerOwns(c *gin.Context, userID string) bool {
	requestingUserID, _ := middleware.GetUserID(c)
	return requestingUserID == userID
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	if !callerOwns(c, c.Param("id")) {
		middleware.RespondWithError(c, http.StatusForbidden, "You can only update your own user details")
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	view, err := h.commands.UpdateUser(c.Request.Context(), cqrs.UpdateUserCommand{
		UserID:      c.Param("id"),
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
	})
	if err != nil {
		respondUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *UserHandler) UpdateBankingData(c *gin.Context) {
	if !callerOwns(c, c.Param("id")) {
		middleware.RespondWithError(c, http.StatusForbidden, "You can only update your own banking data")
		return
	}

	var req UpdateBankingDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	user, err := h.commands.UpdateBankingData(c.Request.Context(), cqrs.UpdateBankingDataCommand{
		UserID:      c.Param("id"),
		BankAgency:  req.BankAgency,
		BankAccount: req.BankAccount,
	})
	if err != nil {
		respondUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) DeactivateUser(c *gin.Context) {
	if !callerOwns(c, c.Param("id")) {
		middleware.RespondWithError(c, http.StatusForbidden, "You can only deactivate your own user")
		return
	}

	err := h.commands.DeactivateUser(c.Request.Context(), cqrs.DeactivateUserCommand{
		UserID: c.Param("id"),
	})
	if err != nil {
		respondUserError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func respondUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, apperrors.ErrEmailTaken):
		middleware.RespondWithError(c, http.StatusConflict, "Email already exists")
	case errors.Is(err, apperrors.ErrPublishFailed):
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to publish event")
	default:
		middleware.RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
