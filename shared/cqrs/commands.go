package cqrs

import (
	"github.com/shopspring/decimal"

	"github.com/danfigueroa/loomi-sub000/shared/models"
)

type RegisterUserCommand struct {
	Name        string
	Email       string
	PhoneNumber string
	Address     models.Address
}

type UpdateUserCommand struct {
	UserID      string
	Name        string
	Email       string
	PhoneNumber string
	Address     models.Address
}

type UpdateBankingDataCommand struct {
	UserID      string
	BankAgency  string
	BankAccount string
}

type DeactivateUserCommand struct {
	UserID string
}

type CreateTransactionCommand struct {
	FromUserID  string
	ToUserID    string
	Amount      decimal.Decimal
	Description string
	Type        models.TransactionType
}

type ProcessTransactionCommand struct {
	TransactionID string
}

type CancelTransactionCommand struct {
	TransactionID string
}
