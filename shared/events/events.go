package events

import (
	"encoding/json"
	"time"
)

// Event types double as routing keys on the topic exchanges.
const (
	TransactionCreated   = "transaction.created"
	TransactionProcessed = "transaction.processed"
	TransactionCancelled = "transaction.cancelled"

	UserRegistered     = "user.registered"
	BankingDataUpdated = "user.banking-data-updated"
)

// Envelope wraps every published event. Timestamp is RFC3339;
// CorrelationID links the event back to the request that triggered it.
type Envelope struct {
	EventType     string          `json:"eventType"`
	EntityID      string          `json:"entityId"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// DecodePayload unmarshals the envelope payload into out.
func (e Envelope) DecodePayload(out any) error {
	return json.Unmarshal(e.Payload, out)
}

// Transaction events
type TransactionCreatedEvent struct {
	TransactionID     string `json:"transactionId"`
	FromUserID        string `json:"fromUserId"`
	ToUserID          string `json:"toUserId"`
	Amount            string `json:"amount"`
	Type              string `json:"type"`
	ExternalReference string `json:"externalReference"`
}

type TransactionProcessedEvent struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

type TransactionCancelledEvent struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
}

// User events
type UserRegisteredEvent struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

type BankingDataUpdatedEvent struct {
	UserID      string `json:"userId"`
	BankAgency  string `json:"bankAgency"`
	BankAccount string `json:"bankAccount"`
}
