package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
)

// CanTransitionTo reports whether the status machine allows moving from s to
// next. COMPLETED and CANCELLED are terminal.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCompleted ||
			next == StatusFailed || next == StatusCancelled
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	default:
		return false
	}
}

// TransactionType classifies the money movement.
type TransactionType string

const (
	TypeTransfer   TransactionType = "TRANSFER"
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
)

// ValidTransactionType reports whether t is one of the known types.
func ValidTransactionType(t TransactionType) bool {
	return t == TypeTransfer || t == TypeDeposit || t == TypeWithdrawal
}

type Address struct {
	Line1    string `json:"line1" validate:"required"`
	Line2    string `json:"line2,omitempty"`
	Town     string `json:"town" validate:"required"`
	Postcode string `json:"postcode" validate:"required"`
}

type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
	Address     Address   `json:"address"`
	IsActive    bool      `json:"isActive"`
	BankAgency  string    `json:"bankAgency,omitempty"`
	BankAccount string    `json:"bankAccount,omitempty"`
	CreatedAt   time.Time `json:"createdTimestamp"`
	UpdatedAt   time.Time `json:"updatedTimestamp"`
}

// CustomerInfo is the subset of user data the transaction service receives
// from GET /v1/users/:id when validating transfer parties.
type CustomerInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"isActive"`
}

type Transaction struct {
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
