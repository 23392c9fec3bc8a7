package payment

import (
	"time"

	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/types"
)

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// Valid reports whether s is a known payment status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// Method is how the student pays.
type Method string

const (
	MethodMpesa        Method = "mpesa"
	MethodCard         Method = "card"
	MethodPaypal       Method = "paypal"
	MethodBankTransfer Method = "bank_transfer"
	MethodSimulated    Method = "simulated"
)

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	switch m {
	case MethodMpesa, MethodCard, MethodPaypal, MethodBankTransfer, MethodSimulated:
		return true
	}
	return false
}

// Payment is a monetary transaction tied to a chapter.
type Payment struct {
	types.Entity
	ID            id.PaymentID `json:"id"`
	OwnerID       string       `json:"owner_id"`
	ChapterID     id.ChapterID `json:"chapter_id"`
	Amount        types.Money  `json:"amount"`
	Status        Status       `json:"status"`
	PaymentMethod Method       `json:"payment_method"`
	TransactionID string       `json:"transaction_id,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	RefundReason  string       `json:"refund_reason,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	FailedAt      *time.Time   `json:"failed_at,omitempty"`
	RefundedAt    *time.Time   `json:"refunded_at,omitempty"`
}

// HasChapter reports whether the payment references a chapter.
func (p *Payment) HasChapter() bool { return !p.ChapterID.IsNil() }
