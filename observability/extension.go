// Package observability provides a metrics extension for the desk that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/plugin"
	"github.com/thesisdesk/thesisdesk/pricing"
	"github.com/thesisdesk/thesisdesk/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnQuoteComputed       = (*MetricsExtension)(nil)
	_ plugin.OnChapterCreated      = (*MetricsExtension)(nil)
	_ plugin.OnChapterUpdated      = (*MetricsExtension)(nil)
	_ plugin.OnChapterDeleted      = (*MetricsExtension)(nil)
	_ plugin.OnFeedbackAdded       = (*MetricsExtension)(nil)
	_ plugin.OnAttachmentAdded     = (*MetricsExtension)(nil)
	_ plugin.OnPaymentCreated      = (*MetricsExtension)(nil)
	_ plugin.OnPaymentTransitioned = (*MetricsExtension)(nil)
	_ plugin.OnPaymentDeleted      = (*MetricsExtension)(nil)
	_ plugin.OnPayoutChecked       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a desk plugin to track orders, payments and payouts.
type MetricsExtension struct {
	factory MetricFactory

	// Pricing metrics
	QuotesComputed Counter
	QuotePages     Histogram

	// Chapter metrics
	ChapterCreated     Counter
	ChapterUpdated     Counter
	ChapterCompleted   Counter
	ChapterDeleted     Counter
	FeedbackAdded      Counter
	AttachmentAdded    Counter
	AttachmentBytes    Histogram
	ChapterQuotedMinor Histogram

	// Payment metrics
	PaymentCreated    Counter
	PaymentProcessing Counter
	PaymentCompleted  Counter
	PaymentFailed     Counter
	PaymentRefunded   Counter
	PaymentDeleted    Counter
	PaymentAmount     Histogram

	// Earnings metrics
	PayoutChecks   Counter
	PayoutRejected Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		QuotesComputed: factory.Counter("thesisdesk.pricing.quotes"),
		QuotePages:     factory.Histogram("thesisdesk.pricing.pages"),

		ChapterCreated:     factory.Counter("thesisdesk.chapter.created"),
		ChapterUpdated:     factory.Counter("thesisdesk.chapter.updated"),
		ChapterCompleted:   factory.Counter("thesisdesk.chapter.completed"),
		ChapterDeleted:     factory.Counter("thesisdesk.chapter.deleted"),
		FeedbackAdded:      factory.Counter("thesisdesk.chapter.feedback"),
		AttachmentAdded:    factory.Counter("thesisdesk.chapter.attachments"),
		AttachmentBytes:    factory.Histogram("thesisdesk.chapter.attachment_bytes"),
		ChapterQuotedMinor: factory.Histogram("thesisdesk.chapter.quoted_amount"),

		PaymentCreated:    factory.Counter("thesisdesk.payment.created"),
		PaymentProcessing: factory.Counter("thesisdesk.payment.processing"),
		PaymentCompleted:  factory.Counter("thesisdesk.payment.completed"),
		PaymentFailed:     factory.Counter("thesisdesk.payment.failed"),
		PaymentRefunded:   factory.Counter("thesisdesk.payment.refunded"),
		PaymentDeleted:    factory.Counter("thesisdesk.payment.deleted"),
		PaymentAmount:     factory.Histogram("thesisdesk.payment.completed_amount"),

		PayoutChecks:   factory.Counter("thesisdesk.payout.checks"),
		PayoutRejected: factory.Counter("thesisdesk.payout.rejected"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnQuoteComputed implements plugin.OnQuoteComputed.
func (m *MetricsExtension) OnQuoteComputed(_ context.Context, _ pricing.Request, snap pricing.Snapshot) error {
	m.QuotesComputed.Inc()
	m.QuotePages.Observe(float64(snap.Pages))
	return nil
}

// ──────────────────────────────────────────────────
// Chapter lifecycle hooks
// ──────────────────────────────────────────────────

// OnChapterCreated implements plugin.OnChapterCreated.
func (m *MetricsExtension) OnChapterCreated(_ context.Context, ch *chapter.Chapter) error {
	m.ChapterCreated.Inc()
	m.ChapterQuotedMinor.Observe(float64(ch.EstimatedCost().Amount))
	return nil
}

// OnChapterUpdated implements plugin.OnChapterUpdated.
func (m *MetricsExtension) OnChapterUpdated(_ context.Context, before, after *chapter.Chapter) error {
	m.ChapterUpdated.Inc()
	if before.Status != chapter.StatusCompleted && after.Status == chapter.StatusCompleted {
		m.ChapterCompleted.Inc()
	}
	return nil
}

// OnChapterDeleted implements plugin.OnChapterDeleted.
func (m *MetricsExtension) OnChapterDeleted(_ context.Context, _ *chapter.Chapter) error {
	m.ChapterDeleted.Inc()
	return nil
}

// OnFeedbackAdded implements plugin.OnFeedbackAdded.
func (m *MetricsExtension) OnFeedbackAdded(_ context.Context, _ *chapter.Chapter, _ chapter.Feedback) error {
	m.FeedbackAdded.Inc()
	return nil
}

// OnAttachmentAdded implements plugin.OnAttachmentAdded.
func (m *MetricsExtension) OnAttachmentAdded(_ context.Context, _ *chapter.Chapter, att chapter.Attachment) error {
	m.AttachmentAdded.Inc()
	m.AttachmentBytes.Observe(float64(att.Size))
	return nil
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentCreated implements plugin.OnPaymentCreated.
func (m *MetricsExtension) OnPaymentCreated(_ context.Context, _ *payment.Payment) error {
	m.PaymentCreated.Inc()
	return nil
}

// OnPaymentTransitioned implements plugin.OnPaymentTransitioned.
func (m *MetricsExtension) OnPaymentTransitioned(_ context.Context, p *payment.Payment, _ payment.Status) error {
	switch p.Status {
	case payment.StatusProcessing:
		m.PaymentProcessing.Inc()
	case payment.StatusCompleted:
		m.PaymentCompleted.Inc()
		m.PaymentAmount.Observe(float64(p.Amount.Amount))
	case payment.StatusFailed:
		m.PaymentFailed.Inc()
	case payment.StatusRefunded:
		m.PaymentRefunded.Inc()
	}
	return nil
}

// OnPaymentDeleted implements plugin.OnPaymentDeleted.
func (m *MetricsExtension) OnPaymentDeleted(_ context.Context, _ *payment.Payment) error {
	m.PaymentDeleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Earnings hooks
// ──────────────────────────────────────────────────

// OnPayoutChecked implements plugin.OnPayoutChecked.
func (m *MetricsExtension) OnPayoutChecked(_ context.Context, _ string, _ types.Money, err error) error {
	m.PayoutChecks.Inc()
	if err != nil {
		m.PayoutRejected.Inc()
	}
	return nil
}
