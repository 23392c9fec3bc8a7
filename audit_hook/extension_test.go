package audithook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/thesisdesk/thesisdesk/audit_hook"
	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/earnings"
	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/types"
)

type captured struct {
	events []*audithook.AuditEvent
}

func (c *captured) recorder() audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		c.events = append(c.events, evt)
		return nil
	})
}

func TestChapterUpdateActions(t *testing.T) {
	var c captured
	ext := audithook.New(c.recorder())
	ctx := context.Background()

	before := &chapter.Chapter{ID: id.NewChapterID(), Status: chapter.StatusDraft}

	assigned := before.Clone()
	assigned.WriterID = "w1"
	require.NoError(t, ext.OnChapterUpdated(ctx, before, assigned))

	repriced := before.Clone()
	repriced.Pricing.TotalPrice = types.KES(100)
	require.NoError(t, ext.OnChapterUpdated(ctx, before, repriced))

	edited := before.Clone()
	edited.Status = chapter.StatusInProgress
	require.NoError(t, ext.OnChapterUpdated(ctx, before, edited))

	require.Len(t, c.events, 3)
	assert.Equal(t, audithook.ActionWriterAssigned, c.events[0].Action)
	assert.Equal(t, audithook.ActionChapterRepriced, c.events[1].Action)
	assert.Equal(t, audithook.ActionChapterUpdated, c.events[2].Action)
	assert.Equal(t, "in_progress", c.events[2].Metadata["status"])
}

func TestPaymentTransitionActions(t *testing.T) {
	var c captured
	ext := audithook.New(c.recorder())
	ctx := context.Background()

	p := &payment.Payment{ID: id.NewPaymentID(), Amount: types.KES(8736), Status: payment.StatusFailed, FailureReason: "card declined"}
	require.NoError(t, ext.OnPaymentTransitioned(ctx, p, payment.StatusPending))

	p.Status = payment.StatusCompleted
	p.TransactionID = "TXN_1"
	require.NoError(t, ext.OnPaymentTransitioned(ctx, p, payment.StatusProcessing))

	require.Len(t, c.events, 2)
	assert.Equal(t, audithook.ActionPaymentFailed, c.events[0].Action)
	assert.Equal(t, audithook.OutcomeFailure, c.events[0].Outcome)
	assert.Equal(t, "card declined", c.events[0].Reason)
	assert.Equal(t, audithook.ActionPaymentCompleted, c.events[1].Action)
	assert.Equal(t, "TXN_1", c.events[1].Metadata["transaction_id"])
}

func TestActionFilters(t *testing.T) {
	var c captured
	ext := audithook.New(c.recorder(), audithook.WithDisabledActions(audithook.ActionPayoutChecked))
	ctx := context.Background()

	require.NoError(t, ext.OnPayoutChecked(ctx, "w1", types.KES(100), nil))
	require.NoError(t, ext.OnPayoutChecked(ctx, "w1", types.KES(100), earnings.ErrInsufficientEarnings))

	require.Len(t, c.events, 1)
	assert.Equal(t, audithook.ActionPayoutRejected, c.events[0].Action)

	only := audithook.New(c.recorder(), audithook.WithEnabledActions(audithook.ActionPaymentDeleted))
	require.NoError(t, only.OnChapterDeleted(ctx, &chapter.Chapter{ID: id.NewChapterID()}))
	require.NoError(t, only.OnPaymentDeleted(ctx, &payment.Payment{ID: id.NewPaymentID(), Status: payment.StatusPending}))
	require.Len(t, c.events, 2)
	assert.Equal(t, audithook.ActionPaymentDeleted, c.events[1].Action)
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("audit store down")
	}))
	err := ext.OnChapterCreated(context.Background(), &chapter.Chapter{
		ID:     id.NewChapterID(),
		Entity: types.NewEntity(time.Now()),
	})
	assert.NoError(t, err)
}
