package cqrs

// ---------- User queries ----------

// GetUserQuery fetches a single user by ID.
type GetUserQuery struct {
	UserID string
}

// ---------- Transaction queries ----------

// GetTransactionQuery fetches a single transaction.
type GetTransactionQuery struct {
	TransactionID string
}

// ListUserTransactionsQuery fetches a page of transactions where the user is
// either party. Page starts at 1; Limit is bounded to [1, 100].
type ListUserTransactionsQuery struct {
	UserID string
	Page   int
	Limit  int
}
