package payment

import (
	"context"
	"time"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/id"
)

// Change is one atomic write of a payment together with its chapter.
type Change struct {
	Payment *Payment
	// From is the payment status the store must still hold.
	From Status
	// Chapter is nil when the chapter is not written.
	Chapter *chapter.Chapter
	// ChapterUpdatedAt is the updated_at the stored chapter must still carry.
	ChapterUpdatedAt time.Time
}

// Store persists payments. Every write that affects a chapter goes through
// a Change so both records move together or not at all.
type Store interface {
	// CreatePayment inserts p only if its chapter exists and is still unpaid.
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*Payment, error)
	ListPayments(ctx context.Context, ownerID string, opts ListOpts) ([]*Payment, error)
	ApplyPaymentTransition(ctx context.Context, c Change) error
	// DeletePayment removes c.Payment if its stored status is still c.From
	// and deletable.
	DeletePayment(ctx context.Context, c Change) error
}

type ListOpts struct {
	ChapterID id.ChapterID
	Status    Status
	Limit     int
	Offset    int
}
