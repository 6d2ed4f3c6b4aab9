package domain

import "time"

type TransactionKind string

const (
	TxDeposit      TransactionKind = "deposit"
	TxWithdrawal   TransactionKind = "withdrawal"
	TxContribution TransactionKind = "contribution"
	TxRefund       TransactionKind = "refund"
)

type TransactionStatus string

const (
	TxCompleted TransactionStatus = "completed"
	TxPending   TransactionStatus = "pending"
	TxFailed    TransactionStatus = "failed"
)

type Transaction struct {
	ID          string            `json:"id"`
	Kind        TransactionKind   `json:"kind"`
	Amount      float64           `json:"amount"`
	Status      TransactionStatus `json:"status"`
	ProjectID   string            `json:"project_id,omitempty"`
	Description string            `json:"description"`
	Method      string            `json:"method"`
	CreatedAt   time.Time         `json:"created_at"`
}

type Wallet struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodWallet PaymentMethod = "wallet"
	MethodMobile PaymentMethod = "mobile"
)

// Payment is a contribution to a project.
type Payment struct {
	ProjectID string        `json:"project_id"`
	Amount    float64       `json:"amount"`
	Method    PaymentMethod `json:"method"`
	CardName  string        `json:"card_name,omitempty"`
	CardLast4 string        `json:"card_last4,omitempty"`
	Phone     string        `json:"phone,omitempty"`
	Anonymous bool          `json:"anonymous"`
}
