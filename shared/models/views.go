package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserView is the read-optimised projection of a user.
// TransactionCount is denormalised from transaction.created events.
type UserView struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	PhoneNumber      string    `json:"phoneNumber"`
	IsActive         bool      `json:"isActive"`
	TransactionCount int64     `json:"transactionCount"`
	CreatedAt        time.Time `json:"createdTimestamp"`
	UpdatedAt        time.Time `json:"updatedTimestamp"`
}

// TransactionView is the read-optimised projection of a transaction.
type TransactionView struct {
	ID                string            `json:"id"`
	FromUserID        string            `json:"fromUserId"`
	ToUserID          string            `json:"toUserId"`
	Amount            decimal.Decimal   `json:"amount"`
	Description       string            `json:"description,omitempty"`
	Status            TransactionStatus `json:"status"`
	Type              TransactionType   `json:"type"`
	ExternalReference string            `json:"externalReference"`
	CreatedAt         time.Time         `json:"createdTimestamp"`
	UpdatedAt         time.Time         `json:"updatedTimestamp"`
	ProcessedAt       *time.Time        `json:"processedTimestamp,omitempty"`
}

// Pagination carries list metadata for paged endpoints.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}
