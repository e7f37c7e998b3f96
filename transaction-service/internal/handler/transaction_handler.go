package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/danfigueroa/loomi-sub000/shared/apperrors"
	"github.com/danfigueroa/loomi-sub000/shared/cqrs"
	"github.com/danfigueroa/loomi-sub000/shared/middleware"
	"github.com/danfigueroa/loomi-sub000/shared/models"
)

// TransactionCommander defines the write-side operations used by TransactionHandler.
type TransactionCommander interface {
	CreateTransaction(ctx context.Context, cmd cqrs.CreateTransactionCommand) (*models.Transaction, error)
	ProcessTransaction(ctx context.Context, cmd cqrs.ProcessTransactionCommand) (*models.Transaction, error)
	CancelTransaction(ctx context.Context, cmd cqrs.CancelTransactionCommand) (*models.Transaction, error)
}

// TransactionQuerier defines the read-side operations used by TransactionHandler.
type TransactionQuerier interface {
	GetTransaction(ctx context.Context, q cqrs.GetTransactionQuery) (*models.TransactionView, error)
	ListUserTransactions(ctx context.Context, q cqrs.ListUserTransactionsQuery) ([]models.TransactionView, *models.Pagination, error)
}

// TransactionHandler routes requests to the command or query service as appropriate.
type TransactionHandler struct {
	commands TransactionCommander
	queries  TransactionQuerier
}

type CreateTransactionRequest struct {
	FromUserID  string  `json:"fromUserId" validate:"required"`
	ToUserID    string  `json:"toUserId" validate:"required"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description" validate:"lte=255"`
	Type        string  `json:"type" validate:"required,oneof=TRANSFER DEPOSIT WITHDRAWAL"`
}

type ListTransactionsResponse struct {
	Data       []models.TransactionView `json:"data"`
	Pagination models.Pagination        `json:"pagination"`
}

func NewTransactionHandler(commands TransactionCommander, queries TransactionQuerier) *TransactionHandler {
	return &TransactionHandler{commands: commands, queries: queries}
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	transaction, err := h.commands.CreateTransaction(c.Request.Context(), cqrs.CreateTransactionCommand{
		FromUserID:  req.FromUserID,
		ToUserID:    req.ToUserID,
		Amount:      decimal.NewFromFloat(req.Amount),
		Description: req.Description,
		Type:        models.TransactionType(req.Type),
	})
	if err != nil {
		respondTransactionError(c, err)
		return
	}

	c.JSON(http.StatusCreated, transaction)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	view, err := h.queries.GetTransaction(c.Request.Context(), cqrs.GetTransactionQuery{
		TransactionID: c.Param("id"),
	})
	if err != nil {
		respondTransactionError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *TransactionHandler) ListUserTransactions(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "page must be an integer")
		return
	}
	limit, err := queryInt(c, "limit", 10)
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "limit must be an integer")
		return
	}

	views, pagination, err := h.queries.ListUserTransactions(c.Request.Context(), cqrs.ListUserTransactionsQuery{
		UserID: c.Param("userId"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondTransactionError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListTransactionsResponse{Data: views, Pagination: *pagination})
}

func (h *TransactionHandler) ProcessTransaction(c *gin.Context) {
	transaction, err := h.commands.ProcessTransaction(c.Request.Context(), cqrs.ProcessTransactionCommand{
		TransactionID: c.Param("id"),
	})
	if err != nil {
		respondTransactionError(c, err)
		return
	}

	c.JSON(http.StatusOK, transaction)
}

func (h *TransactionHandler) CancelTransaction(c *gin.Context) {
	transaction, err := h.commands.CancelTransaction(c.Request.Context(), cqrs.CancelTransactionCommand{
		TransactionID: c.Param("id"),
	})
	if err != nil {
		respondTransactionError(c, err)
		return
	}

	c.JSON(http.StatusOK, transaction)
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// respondTransactionError maps service errors to HTTP status codes.
func respondTransactionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrSameUserTransfer),
		errors.Is(err, apperrors.ErrUserInactive),
		errors.Is(err, apperrors.ErrInvalidState):
		middleware.RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrPublishFailed):
		// The transaction is already stored; a retry would duplicate it,
		// so this is not surfaced as retryable even when the broker is down.
		middleware.RespondWithError(c, http.StatusInternalServerError, "Transaction stored but event publish failed")
	case apperrors.IsRetryable(err):
		middleware.RespondWithError(c, http.StatusServiceUnavailable, "Service temporarily unavailable, try again later")
	default:
		middleware.RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
