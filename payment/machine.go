// Package payment implements the payment lifecycle as pure functions over
// Payment and chapter.Chapter values. Nothing here touches storage; callers
// persist the returned values together through Store.
package payment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/types"
)

var (
	ErrInvalidTransition  = errors.New("payment: invalid status transition")
	ErrChapterAlreadyPaid = errors.New("payment: chapter is already paid")
	ErrNotDeletable       = errors.New("payment: only pending or failed payments can be deleted")
	ErrInvalidMethod      = errors.New("payment: unsupported payment method")
	ErrNegativeAmount     = errors.New("payment: amount must not be negative")
	ErrAmountMismatch     = errors.New("payment: amount no longer matches the chapter quote")
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRefunded, StatusFailed},
	StatusRefunded:   {StatusFailed},
	StatusFailed:     nil,
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanDelete reports whether p may be removed.
func CanDelete(p Payment) bool {
	return p.Status == StatusPending || p.Status == StatusFailed
}

// TxnIDGenerator produces transaction IDs for payments completed without one.
type TxnIDGenerator func(now time.Time) string

// NewTransactionID returns TXN_<unix millis>_<9 random upper-case chars>.
func NewTransactionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("TXN_%d_%s", now.UnixMilli(), strings.ToUpper(suffix))
}

// New builds a pending payment for ch priced at its quoted total.
func New(ownerID string, ch *chapter.Chapter, method Method, now time.Time) (Payment, error) {
	if !method.Valid() {
		return Payment{}, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if ch.IsPaid {
		return Payment{}, ErrChapterAlreadyPaid
	}
	amount := ch.EstimatedCost()
	if amount.IsNegative() {
		return Payment{}, ErrNegativeAmount
	}
	if amount.Currency == "" {
		amount = types.Zero(ch.Pricing.PricePerPage.Currency)
	}
	return Payment{
		Entity:        types.NewEntity(now),
		ID:            id.NewPaymentID(),
		OwnerID:       ownerID,
		ChapterID:     ch.ID,
		Amount:        amount,
		Status:        StatusPending,
		PaymentMethod: method,
	}, nil
}

// Request asks for a status change.
type Request struct {
	Status        Status `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Outcome is the result of a transition. Chapter is nil when the linked
// chapter needs no write.
type Outcome struct {
	Payment Payment
	From    Status
	Chapter *chapter.Chapter
}

// Transition applies req to p and derives the side effect on ch, which may
// be nil when the payment has no chapter. Neither input is modified.
// Completing requires p.Amount to equal the chapter's current quote. A failed
// or refunded payment unlinks only a chapter linked to it or to no payment.
func Transition(p Payment, ch *chapter.Chapter, req Request, now time.Time, gen TxnIDGenerator) (Outcome, error) {
	if !CanTransition(p.Status, req.Status) {
		return Outcome{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, req.Status)
	}

	out := Outcome{Payment: p, From: p.Status}
	ts := now.UTC()

	var next *chapter.Chapter
	if ch != nil {
		next = ch.Clone()
	}

	switch req.Status {
	case StatusCompleted:
		if next != nil && next.IsPaid && !next.LinkedTo(p.ID) {
			return Outcome{}, ErrChapterAlreadyPaid
		}
		if next != nil && !matchesQuote(p.Amount, next.EstimatedCost()) {
			return Outcome{}, fmt.Errorf("%w: paid %s, quoted %s", ErrAmountMismatch, p.Amount, next.EstimatedCost())
		}
		txn := strings.TrimSpace(req.TransactionID)
		if txn == "" {
			txn = strings.TrimSpace(p.TransactionID)
		}
		if txn == "" {
			if gen == nil {
				gen = NewTransactionID
			}
			txn = gen(ts)
		}
		out.Payment.TransactionID = txn
		out.Payment.CompletedAt = &ts
		if next != nil {
			next.IsPaid = true
			next.PaymentID = p.ID
			if next.Status == chapter.StatusDraft {
				next.Status = chapter.StatusInProgress
			}
		}

	case StatusFailed:
		out.Payment.FailureReason = req.Reason
		out.Payment.FailedAt = &ts
		if next != nil && !Unlink(next, p.ID) {
			next = nil
		}

	case StatusRefunded:
		out.Payment.RefundReason = req.Reason
		out.Payment.RefundedAt = &ts
		if next != nil && !Unlink(next, p.ID) {
			next = nil
		}

	case StatusProcessing:
		if t := strings.TrimSpace(req.TransactionID); t != "" {
			out.Payment.TransactionID = t
		}
		next = nil
	}

	out.Payment.Status = req.Status
	out.Payment.Touch(ts)
	if next != nil {
		next.Touch(ts)
		out.Chapter = next
	}
	return out, nil
}

// matchesQuote compares amounts, ignoring the currency of an unset quote.
func matchesQuote(amount, quote types.Money) bool {
	if amount.Amount != quote.Amount {
		return false
	}
	return quote.Currency == "" || amount.Currency == quote.Currency
}

// Unlink clears ch's paid flag and payment reference when ch is linked to
// paymentID or to no payment at all. It reports whether ch changed.
func Unlink(ch *chapter.Chapter, paymentID id.PaymentID) bool {
	if !ch.PaymentID.IsNil() && !ch.LinkedTo(paymentID) {
		return false
	}
	if !ch.IsPaid && ch.PaymentID.IsNil() {
		return false
	}
	ch.IsPaid = false
	ch.PaymentID = id.Nil
	return true
}

// PrepareDelete validates that p can be removed and returns the unlinked
// chapter to persist alongside, or nil when ch is untouched.
func PrepareDelete(p Payment, ch *chapter.Chapter, now time.Time) (*chapter.Chapter, error) {
	if !CanDelete(p) {
		return nil, fmt.Errorf("%w: status %s", ErrNotDeletable, p.Status)
	}
	if ch == nil {
		return nil, nil
	}
	next := ch.Clone()
	if !Unlink(next, p.ID) {
		return nil, nil
	}
	next.Touch(now)
	return next, nil
}
