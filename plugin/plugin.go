// Package plugin lets callers observe what the desk does. Plugins implement
// any subset of the hook interfaces below and are dispatched by type.
package plugin

import (
	"context"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/pricing"
	"github.com/thesisdesk/thesisdesk/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the desk starts. desk is the *thesisdesk.Desk.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, desk any) error
}

// OnShutdown is called when the desk stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Pricing hooks
// ──────────────────────────────────────────────────

// OnQuoteComputed is called after every successful quote.
type OnQuoteComputed interface {
	Plugin
	OnQuoteComputed(ctx context.Context, req pricing.Request, snap pricing.Snapshot) error
}

// ──────────────────────────────────────────────────
// Chapter hooks
// ──────────────────────────────────────────────────

type OnChapterCreated interface {
	Plugin
	OnChapterCreated(ctx context.Context, ch *chapter.Chapter) error
}

type OnChapterUpdated interface {
	Plugin
	OnChapterUpdated(ctx context.Context, before, after *chapter.Chapter) error
}

type OnChapterDeleted interface {
	Plugin
	OnChapterDeleted(ctx context.Context, ch *chapter.Chapter) error
}

// OnFeedbackAdded is the seam for notifying the student or writer.
type OnFeedbackAdded interface {
	Plugin
	OnFeedbackAdded(ctx context.Context, ch *chapter.Chapter, fb chapter.Feedback) error
}

type OnAttachmentAdded interface {
	Plugin
	OnAttachmentAdded(ctx context.Context, ch *chapter.Chapter, att chapter.Attachment) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

type OnPaymentCreated interface {
	Plugin
	OnPaymentCreated(ctx context.Context, p *payment.Payment) error
}

// OnPaymentTransitioned fires for every status change, before the
// status-specific hooks.
type OnPaymentTransitioned interface {
	Plugin
	OnPaymentTransitioned(ctx context.Context, p *payment.Payment, from payment.Status) error
}

// OnPaymentCompleted receives the chapter the payment unlocked, or nil.
type OnPaymentCompleted interface {
	Plugin
	OnPaymentCompleted(ctx context.Context, p *payment.Payment, ch *chapter.Chapter) error
}

type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, p *payment.Payment, reason string) error
}

type OnPaymentRefunded interface {
	Plugin
	OnPaymentRefunded(ctx context.Context, p *payment.Payment, reason string) error
}

type OnPaymentDeleted interface {
	Plugin
	OnPaymentDeleted(ctx context.Context, p *payment.Payment) error
}

// ──────────────────────────────────────────────────
// Earnings hooks
// ──────────────────────────────────────────────────

// OnPayoutChecked is called after a payout request is validated. err is the
// rejection, or nil when the balance covers the amount.
type OnPayoutChecked interface {
	Plugin
	OnPayoutChecked(ctx context.Context, writerID string, amount types.Money, err error) error
}
