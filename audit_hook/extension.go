// Package audithook bridges desk lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/plugin"
	"github.com/thesisdesk/thesisdesk/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnChapterCreated      = (*Extension)(nil)
	_ plugin.OnChapterUpdated      = (*Extension)(nil)
	_ plugin.OnChapterDeleted      = (*Extension)(nil)
	_ plugin.OnFeedbackAdded       = (*Extension)(nil)
	_ plugin.OnAttachmentAdded     = (*Extension)(nil)
	_ plugin.OnPaymentCreated      = (*Extension)(nil)
	_ plugin.OnPaymentTransitioned = (*Extension)(nil)
	_ plugin.OnPaymentDeleted      = (*Extension)(nil)
	_ plugin.OnPayoutChecked       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry in the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes audit events to logger at info level.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"outcome", evt.Outcome,
			"severity", evt.Severity,
			"metadata", evt.Metadata,
		)
		return nil
	})
}

// Extension bridges desk lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Chapter lifecycle hooks
// ──────────────────────────────────────────────────

// OnChapterCreated implements plugin.OnChapterCreated.
func (e *Extension) OnChapterCreated(ctx context.Context, ch *chapter.Chapter) error {
	return e.record(ctx, ActionChapterCreated, SeverityInfo, OutcomeSuccess,
		ResourceChapter, ch.ID.String(), CategoryContent, nil,
		"owner_id", ch.OwnerID,
		"chapter_number", ch.ChapterNumber,
		"estimated_cost", ch.EstimatedCost().String(),
	)
}

// OnChapterUpdated implements plugin.OnChapterUpdated. A writer change or a
// new quote is recorded as its own action.
func (e *Extension) OnChapterUpdated(ctx context.Context, before, after *chapter.Chapter) error {
	switch {
	case before.WriterID != after.WriterID:
		return e.record(ctx, ActionWriterAssigned, SeverityInfo, OutcomeSuccess,
			ResourceChapter, after.ID.String(), CategoryContent, nil,
			"previous_writer_id", before.WriterID,
			"writer_id", after.WriterID,
		)
	case !before.Pricing.Equal(after.Pricing):
		return e.record(ctx, ActionChapterRepriced, SeverityInfo, OutcomeSuccess,
			ResourceChapter, after.ID.String(), CategoryContent, nil,
			"previous_cost", before.EstimatedCost().String(),
			"estimated_cost", after.EstimatedCost().String(),
		)
	default:
		return e.record(ctx, ActionChapterUpdated, SeverityInfo, OutcomeSuccess,
			ResourceChapter, after.ID.String(), CategoryContent, nil,
			"previous_status", string(before.Status),
			"status", string(after.Status),
			"revision", after.LatestVersion(),
		)
	}
}

// OnChapterDeleted implements plugin.OnChapterDeleted.
func (e *Extension) OnChapterDeleted(ctx context.Context, ch *chapter.Chapter) error {
	return e.record(ctx, ActionChapterDeleted, SeverityWarning, OutcomeSuccess,
		ResourceChapter, ch.ID.String(), CategoryContent, nil,
		"owner_id", ch.OwnerID,
		"files", len(ch.Files),
	)
}

// OnFeedbackAdded implements plugin.OnFeedbackAdded.
func (e *Extension) OnFeedbackAdded(ctx context.Context, ch *chapter.Chapter, fb chapter.Feedback) error {
	return e.record(ctx, ActionFeedbackAdded, SeverityInfo, OutcomeSuccess,
		ResourceChapter, ch.ID.String(), CategoryContent, nil,
		"feedback_id", fb.ID.String(),
		"author_id", fb.AuthorID,
	)
}

// OnAttachmentAdded implements plugin.OnAttachmentAdded.
func (e *Extension) OnAttachmentAdded(ctx context.Context, ch *chapter.Chapter, att chapter.Attachment) error {
	return e.record(ctx, ActionFileAttached, SeverityInfo, OutcomeSuccess,
		ResourceChapter, ch.ID.String(), CategoryContent, nil,
		"attachment_id", att.ID.String(),
		"name", att.Name,
		"size", att.Size,
	)
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentCreated implements plugin.OnPaymentCreated.
func (e *Extension) OnPaymentCreated(ctx context.Context, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentCreated, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"chapter_id", p.ChapterID.String(),
		"amount", p.Amount.String(),
		"method", string(p.PaymentMethod),
	)
}

// OnPaymentTransitioned implements plugin.OnPaymentTransitioned.
func (e *Extension) OnPaymentTransitioned(ctx context.Context, p *payment.Payment, from payment.Status) error {
	kv := []any{
		"from", string(from),
		"to", string(p.Status),
		"amount", p.Amount.String(),
		"transaction_id", p.TransactionID,
	}

	switch p.Status {
	case payment.StatusProcessing:
		return e.record(ctx, ActionPaymentProcessing, SeverityInfo, OutcomeSuccess,
			ResourcePayment, p.ID.String(), CategoryPayment, nil, kv...)
	case payment.StatusCompleted:
		return e.record(ctx, ActionPaymentCompleted, SeverityInfo, OutcomeSuccess,
			ResourcePayment, p.ID.String(), CategoryPayment, nil,
			append(kv, "chapter_id", p.ChapterID.String())...)
	case payment.StatusFailed:
		return e.record(ctx, ActionPaymentFailed, SeverityError, OutcomeFailure,
			ResourcePayment, p.ID.String(), CategoryPayment, reasonErr(p.FailureReason), kv...)
	case payment.StatusRefunded:
		return e.record(ctx, ActionPaymentRefunded, SeverityWarning, OutcomeSuccess,
			ResourcePayment, p.ID.String(), CategoryPayment, nil,
			append(kv, "refund_reason", p.RefundReason)...)
	}
	return nil
}

// OnPaymentDeleted implements plugin.OnPaymentDeleted.
func (e *Extension) OnPaymentDeleted(ctx context.Context, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentDeleted, SeverityWarning, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"status", string(p.Status),
		"chapter_id", p.ChapterID.String(),
	)
}

// ──────────────────────────────────────────────────
// Earnings hooks
// ──────────────────────────────────────────────────

// OnPayoutChecked implements plugin.OnPayoutChecked.
func (e *Extension) OnPayoutChecked(ctx context.Context, writerID string, amount types.Money, err error) error {
	if err != nil {
		return e.record(ctx, ActionPayoutRejected, SeverityWarning, OutcomeFailure,
			ResourceEarnings, writerID, CategoryEarnings, err,
			"amount", amount.String(),
		)
	}
	return e.record(ctx, ActionPayoutChecked, SeverityInfo, OutcomeSuccess,
		ResourceEarnings, writerID, CategoryEarnings, nil,
		"amount", amount.String(),
	)
}

func reasonErr(reason string) error {
	if reason == "" {
		return nil
	}
	return errors.New(reason)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
