package thesisdesk_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesisdesk/thesisdesk"
	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/earnings"
	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/pricing"
	"github.com/thesisdesk/thesisdesk/store"
	"github.com/thesisdesk/thesisdesk/store/memory"
)

const (
	owner  = "student-1"
	writer = "writer-1"
)

// stepClock advances by one second on every call so consecutive writes
// never share an UpdatedAt.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newDesk(t *testing.T, opts ...thesisdesk.Option) *thesisdesk.Desk {
	t.Helper()
	return newDeskOn(t, memory.New(), opts...)
}

func newDeskOn(t *testing.T, s store.Store, opts ...thesisdesk.Option) *thesisdesk.Desk {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]thesisdesk.Option{
		thesisdesk.WithClock(clock.Now),
		thesisdesk.WithPricePerPage(thesisdesk.KES(400)),
	}, opts...)

	d := thesisdesk.New(s, opts...)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func newChapter(t *testing.T, d *thesisdesk.Desk, number int) *chapter.Chapter {
	t.Helper()
	ch := &chapter.Chapter{
		OwnerID:         owner,
		Title:           "Literature Review",
		ChapterNumber:   number,
		TargetWordCount: 2000,
		Level:           pricing.LevelPhD,
		WorkType:        pricing.WorkStatistics,
		Urgency:         pricing.UrgencyUrgent,
	}
	require.NoError(t, d.CreateChapter(context.Background(), ch))
	return ch
}

func ptr[T any](v T) *T { return &v }

func TestQuote(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()

	snap, err := d.Quote(ctx, pricing.Request{
		TargetWordCount: 2000,
		Level:           pricing.LevelPhD,
		WorkType:        pricing.WorkStatistics,
		Urgency:         pricing.UrgencyUrgent,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), snap.Pages)
	assert.Equal(t, int64(8736), snap.TotalPrice.Amount)
	assert.Equal(t, "kes", d.Currency())

	_, err = d.Quote(ctx, pricing.Request{TargetWordCount: 2000, Level: "bachelors"})
	assert.True(t, thesisdesk.IsValidation(err))

	_, err = d.Quote(ctx, pricing.Request{TargetWordCount: 0})
	assert.True(t, thesisdesk.IsValidation(err))
	assert.ErrorIs(t, err, pricing.ErrInvalidTarget)
}

func TestOversizedTargetRejected(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	huge := pricing.Request{
		TargetWordCount: pricing.MaxTargetWordCount + 1,
		Level:           pricing.LevelPhD,
		WorkType:        pricing.WorkStatistics,
		Urgency:         pricing.UrgencyUrgent,
	}

	_, err := d.Quote(ctx, huge)
	assert.True(t, thesisdesk.IsValidation(err))
	assert.ErrorIs(t, err, pricing.ErrTargetTooLarge)

	ch := &chapter.Chapter{
		OwnerID:         owner,
		Title:           "Everything",
		ChapterNumber:   1,
		TargetWordCount: huge.TargetWordCount,
		Level:           huge.Level,
		WorkType:        huge.WorkType,
		Urgency:         huge.Urgency,
	}
	err = d.CreateChapter(ctx, ch)
	assert.True(t, thesisdesk.IsValidation(err))
	assert.ErrorIs(t, err, pricing.ErrTargetTooLarge)

	small := newChapter(t, d, 2)
	_, err = d.UpdateChapter(ctx, owner, small.ID, chapter.Update{TargetWordCount: ptr(int(^uint(0) >> 1))})
	assert.True(t, thesisdesk.IsValidation(err))
	got, err := d.GetChapter(ctx, owner, small.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8736), got.Pricing.TotalPrice.Amount)
}

func TestCreateChapter(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()

	ch := &chapter.Chapter{
		OwnerID:         owner,
		Title:           "Introduction",
		Content:         "<p>Background of the study</p>",
		ChapterNumber:   1,
		TargetWordCount: 1000,
		Level:           pricing.LevelMasters,
		WorkType:        pricing.WorkCoursework,
		Urgency:         pricing.UrgencyNormal,
		IsPaid:          true,
		WordCount:       999,
	}
	require.NoError(t, d.CreateChapter(ctx, ch))

	assert.False(t, ch.ID.IsNil())
	assert.Equal(t, chapter.StatusDraft, ch.Status)
	assert.False(t, ch.IsPaid)
	assert.Equal(t, 4, ch.WordCount)
	require.Len(t, ch.Revisions, 1)
	assert.Equal(t, 1, ch.Revisions[0].Version)
	assert.Equal(t, int64(1600), ch.Pricing.TotalPrice.Amount)

	got, err := d.GetChapter(ctx, owner, ch.ID)
	require.NoError(t, err)
	assert.True(t, got.Pricing.Equal(ch.Pricing))

	dup := &chapter.Chapter{
		OwnerID:         owner,
		Title:           "Again",
		ChapterNumber:   1,
		TargetWordCount: 500,
		Level:           pricing.LevelMasters,
		WorkType:        pricing.WorkCoursework,
		Urgency:         pricing.UrgencyNormal,
	}
	assert.ErrorIs(t, d.CreateChapter(ctx, dup), thesisdesk.ErrDuplicateChapterNumber)

	bad := &chapter.Chapter{OwnerID: owner, Title: "No target", ChapterNumber: 2}
	assert.True(t, thesisdesk.IsValidation(d.CreateChapter(ctx, bad)))

	assert.True(t, thesisdesk.IsValidation(d.CreateChapter(ctx, &chapter.Chapter{Title: "x"})))
}

func TestChapterVisibility(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	ch := newChapter(t, d, 1)

	_, err := d.GetChapter(ctx, "someone-else", ch.ID)
	assert.ErrorIs(t, err, thesisdesk.ErrChapterNotFound)

	_, err = d.GetChapter(ctx, writer, ch.ID)
	assert.ErrorIs(t, err, thesisdesk.ErrChapterNotFound)

	_, err = d.AssignWriter(ctx, ch.ID, writer)
	require.NoError(t, err)

	got, err := d.GetChapter(ctx, writer, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, writer, got.WriterID)

	// Writers may work on the chapter but not delete or pay for it.
	assert.ErrorIs(t, d.DeleteChapter(ctx, writer, ch.ID), thesisdesk.ErrChapterNotFound)
	_, err = d.InitiatePayment(ctx, writer, ch.ID, payment.MethodMpesa)
	assert.ErrorIs(t, err, thesisdesk.ErrChapterNotFound)

	list, err := d.ListChapters(ctx, owner, chapter.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateChapter(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	ch := newChapter(t, d, 1)

	next, err := d.UpdateChapter(ctx, owner, ch.ID, chapter.Update{
		Content: ptr("one two three"),
		Urgency: ptr(pricing.UrgencyNormal),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, next.WordCount)
	assert.Equal(t, 1, next.LatestVersion())
	// 8 pages * 400 * 1.3 * 1.4
	assert.Equal(t, int64(5824), next.Pricing.TotalPrice.Amount)
	assert.True(t, next.UpdatedAt.After(ch.UpdatedAt))

	next, err = d.UpdateChapter(ctx, owner, ch.ID, chapter.Update{Status: ptr(chapter.StatusCompleted)})
	require.NoError(t, err)
	require.NotNil(t, next.CompletedAt)

	_, err = d.UpdateChapter(ctx, owner, ch.ID, chapter.Update{Title: ptr("  ")})
	assert.True(t, thesisdesk.IsValidation(err))

	_, err = d.UpdateChapter(ctx, "stranger", ch.ID, chapter.Update{Title: ptr("Mine now")})
	assert.ErrorIs(t, err, thesisdesk.ErrChapterNotFound)
}

func TestUpdateChapterConflict(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	ch := newChapter(t, d, 1)

	stale, err := d.Store().GetChapter(ctx, ch.ID)
	require.NoError(t, err)

	_, err = d.UpdateChapter(ctx, owner, ch.ID, chapter.Update{Title: ptr("Fresh")})
	require.NoError(t, err)

	stale.Title = "Stale"
	err = d.Store().UpdateChapter(ctx, stale, stale.UpdatedAt)
	assert.ErrorIs(t, err, thesisdesk.ErrConflict)
	assert.True(t, thesisdesk.IsRetryable(err))
}

func TestFeedbackAndAttachments(t *testing.T) {
	d := newDesk(t, thesisdesk.WithMaxAttachmentSize(8))
	ctx := context.Background()
	ch := newChapter(t, d, 1)

	fb, err := d.AddFeedback(ctx, owner, ch.ID, "Please cite more sources")
	require.NoError(t, err)
	assert.Equal(t, owner, fb.AuthorID)

	_, err = d.AddFeedback(ctx, owner, ch.ID, "   ")
	assert.True(t, thesisdesk.IsValidation(err))

	att, err := d.AttachFile(ctx, owner, ch.ID, "data.csv", "text/csv", strings.NewReader("a,b,c"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), att.Size)

	meta, rc, err := d.OpenAttachment(ctx, owner, ch.ID, att.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "a,b,c", string(body))
	assert.Equal(t, "data.csv", meta.Name)

	_, err = d.AttachFile(ctx, owner, ch.ID, "big.bin", "", bytes.NewReader(make([]byte, 9)))
	assert.ErrorIs(t, err, thesisdesk.ErrAttachmentTooLarge)

	got, err := d.GetChapter(ctx, owner, ch.ID)
	require.NoError(t, err)
	assert.Len(t, got.Feedback, 1)
	assert.Len(t, got.Files, 1)

	require.NoError(t, d.DeleteChapter(ctx, owner, ch.ID))
	_, err = d.GetChapter(ctx, owner, ch.ID)
	assert.True(t, thesisdesk.IsNotFound(err))
}

func TestPaymentLifecycle(t *testing.T) {
	d := newDesk(t, thesisdesk.WithTxnIDGenerator(func(time.Time) string { return "TXN_FIXED" }))
	ctx := context.Background()
	ch := newChapter(t, d, 1)

	p, err := d.InitiatePayment(ctx, owner, ch.ID, payment.MethodMpesa)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.Equal(t, int64(8736), p.Amount.Amount)

	res, err := d.TransitionPayment(ctx, thesisdesk.TransitionRequest{
		PaymentID: p.ID,
		OwnerID:   owner,
		Status:    payment.StatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, res.Payment.Status)
	assert.Equal(t, "TXN_FIXED", res.Payment.TransactionID)
	require.NotNil(t, res.Chapter)
	assert.True(t, res.Chapter.IsPaid)
	assert.True(t, res.Chapter.LinkedTo(p.ID))
	assert.Equal(t, chapter.StatusInProgress, res.Chapter.Status)

	// A paid chapter keeps its price and cannot be deleted.
	_, err = d.UpdateChapter(ctx, owner, ch.ID, chapter.Update{TargetWordCount: ptr(4000)})
	assert.ErrorIs(t, err, thesisdesk.ErrPricingLocked)
	assert.ErrorIs(t, d.DeleteChapter(ctx, owner, ch.ID), thesisdesk.ErrChapterPaid)

	_, err = d.InitiatePayment(ctx, owner, ch.ID, payment.MethodCard)
	assert.ErrorIs(t, err, thesisdesk.ErrChapterAlreadyPaid)

	assert.ErrorIs(t, d.DeletePayment(ctx, owner, p.ID), thesisdesk.ErrNotDeletable)

	res, err = d.TransitionPayment(ctx, thesisdesk.TransitionRequest{
		PaymentID: p.ID,
		OwnerID:   owner,
		Status:    payment.StatusRefunded,
		Reason:    "duplicate order",
	})
	require.NoError(t, err)
	assert.Equal(t, "duplicate order", res.Payment.RefundReason)
	assert.False(t, res.Chapter.IsPaid)
	assert.True(t, res.Chapter.PaymentID.IsNil())

	_, err = d.TransitionPayment(ctx, thesisdesk.TransitionRequest{
		PaymentID: p.ID,
		OwnerID:   owner,
		Status:    payment.StatusCompleted,
	})
	assert.ErrorIs(t, err, thesisdesk.ErrInvalidTransition)
	assert.True(t, thesisdesk.IsRejected(err))
}

func TestSecondPaymentCannotComplete(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	ch := newChapter(t, d, 1)

	first, err := d.InitiatePayment(ctx, owner, ch.ID, payment.MethodMpesa)
	require.NoError(t, err)
	second, err := d.InitiatePayment(ctx, owner, ch.ID, payment.MethodCard)
	require.NoError(t, err)

	_, err = d.TransitionPayment(ctx, thesisdesk.TransitionRequest{PaymentID: first.ID, OwnerID: owner, Status: payment.StatusCompleted})
	require.NoError(t, err)

	_, err = d.TransitionPayment(ctx, thesisdesk.TransitionRequest{PaymentID: second.ID, OwnerID: owner, Status: payment.StatusCompleted})
	assert.ErrorIs(t, err, thesisdesk.ErrChapterAlreadyPaid)

	// Failing the spare payment leaves the chapter linked to the first one.
	res, err := d.TransitionPayment(ctx, thesisdesk.TransitionRequest{
		PaymentID: second.ID,
		OwnerID:   owner,
		Status:    payment.StatusFailed,
		Reason:    "card declined",
	})
	require.NoError(t, err)
	assert.True(t, res.Chapter.IsPaid)
	assert.True(t, res.Chapter.LinkedTo(first.ID))

	require.NoError(t, d.DeletePayment(ctx, owner, second.ID))
	_, err = d.GetPayment(ctx, owner, second.ID)
	assert.ErrorIs(t, err, thesisdesk.ErrPaymentNotFound)

	list, err := d.ListPayments(ctx, owner, payment.ListOpts{ChapterID: ch.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, first.ID.Equal(list[0].ID))
}

func TestRepricedChapterRejectsStalePayment(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	ch := newChapter(t, d, 1)

	stale, err := d.InitiatePayment(ctx, owner, ch.ID, payment.MethodMpesa)
	require.NoError(t, err)
	assert.Equal(t, int64(8736), stale.Amount.Amount)

	next, err := d.UpdateChapter(ctx, owner, ch.ID, chapter.Update{TargetWordCount: ptr(20000)})
	require.NoError(t, err)
	assert.Equal(t, int64(87360), next.Pricing.TotalPrice.Amount)

	_, err = d.TransitionPayment(ctx, thesisdesk.TransitionRequest{PaymentID: stale.ID, OwnerID: owner, Status: payment.StatusCompleted})
	assert.ErrorIs(t, err, thesisdesk.ErrAmountMismatch)
	assert.True(t, thesisdesk.IsRejected(err))

	got, err := d.GetChapter(ctx, owner, ch.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPaid)

	fresh, err := d.InitiatePayment(ctx, owner, ch.ID, payment.MethodMpesa)
	require.NoError(t, err)
	res, err := d.TransitionPayment(ctx, thesisdesk.TransitionRequest{PaymentID: fresh.ID, OwnerID: owner, Status: payment.StatusCompleted})
	require.NoError(t, err)
	assert.True(t, res.Chapter.LinkedTo(fresh.ID))
}

// racingStore runs onRead once, right after a chapter read, to simulate a
// concurrent writer landing between read and write.
type racingStore struct {
	*memory.Store

	mu     sync.Mutex
	onRead func()
}

func (s *racingStore) GetChapter(ctx context.Context, chapterID id.ChapterID) (*chapter.Chapter, error) {
	ch, err := s.Store.GetChapter(ctx, chapterID)
	s.mu.Lock()
	hook := s.onRead
	s.onRead = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ch, err
}

func TestDeleteChapterLosesToConcurrentPayment(t *testing.T) {
	rs := &racingStore{Store: memory.New()}
	d := newDeskOn(t, rs)
	ctx := context.Background()
	ch := newChapter(t, d, 1)

	p, err := d.InitiatePayment(ctx, owner, ch.ID, payment.MethodCard)
	require.NoError(t, err)

	rs.mu.Lock()
	rs.onRead = func() {
		_, err := d.TransitionPayment(ctx, thesisdesk.TransitionRequest{PaymentID: p.ID, OwnerID: owner, Status: payment.StatusCompleted})
		require.NoError(t, err)
	}
	rs.mu.Unlock()

	err = d.DeleteChapter(ctx, owner, ch.ID)
	assert.ErrorIs(t, err, thesisdesk.ErrConflict)

	got, err := d.GetChapter(ctx, owner, ch.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.True(t, got.LinkedTo(p.ID))

	// A retry sees the payment and refuses outright.
	assert.ErrorIs(t, d.DeleteChapter(ctx, owner, ch.ID), thesisdesk.ErrChapterPaid)
}

func TestPaymentOwnership(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	ch := newChapter(t, d, 1)

	p, err := d.InitiatePayment(ctx, owner, ch.ID, payment.MethodPaypal)
	require.NoError(t, err)

	_, err = d.GetPayment(ctx, "intruder", p.ID)
	assert.ErrorIs(t, err, thesisdesk.ErrPaymentNotFound)

	_, err = d.TransitionPayment(ctx, thesisdesk.TransitionRequest{PaymentID: p.ID, OwnerID: "intruder", Status: payment.StatusFailed})
	assert.ErrorIs(t, err, thesisdesk.ErrPaymentNotFound)

	assert.ErrorIs(t, d.DeletePayment(ctx, "intruder", p.ID), thesisdesk.ErrPaymentNotFound)

	_, err = d.TransitionPayment(ctx, thesisdesk.TransitionRequest{PaymentID: p.ID, OwnerID: owner, Status: "lost"})
	assert.True(t, thesisdesk.IsValidation(err))

	_, err = d.InitiatePayment(ctx, owner, ch.ID, "cash")
	assert.True(t, thesisdesk.IsValidation(err))
}

func TestDeletePaymentUnlinksChapter(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	ch := newChapter(t, d, 1)

	p, err := d.InitiatePayment(ctx, owner, ch.ID, payment.MethodBankTransfer)
	require.NoError(t, err)
	require.NoError(t, d.DeletePayment(ctx, owner, p.ID))

	got, err := d.GetChapter(ctx, owner, ch.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPaid)
	assert.True(t, got.PaymentID.IsNil())

	require.NoError(t, d.DeleteChapter(ctx, owner, ch.ID))
}

func completeChapter(t *testing.T, d *thesisdesk.Desk, number, words int) {
	t.Helper()
	ctx := context.Background()
	ch := &chapter.Chapter{
		OwnerID:         owner,
		Title:           "Findings",
		ChapterNumber:   number,
		TargetWordCount: words,
		Level:           pricing.LevelMasters,
		WorkType:        pricing.WorkCoursework,
		Urgency:         pricing.UrgencyNormal,
		Content:         strings.Repeat("word ", words),
	}
	require.NoError(t, d.CreateChapter(ctx, ch))
	_, err := d.AssignWriter(ctx, ch.ID, writer)
	require.NoError(t, err)
	_, err = d.UpdateChapter(ctx, writer, ch.ID, chapter.Update{Status: ptr(chapter.StatusCompleted)})
	require.NoError(t, err)
}

func TestEarningsSummary(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()

	completeChapter(t, d, 1, 1000) // 4 pages = 1600, writer 1120
	completeChapter(t, d, 2, 500)  // 2 pages = 800, writer 560

	s, err := d.EarningsSummary(ctx, writer, earnings.Range{})
	require.NoError(t, err)
	assert.Equal(t, int64(1680), s.TotalEarnings.Amount)
	assert.Equal(t, 2, s.ChapterCount)
	assert.Equal(t, int64(840), s.AverageEarnings.Amount)
	assert.Equal(t, int64(750), s.AverageWords)
	assert.Equal(t, int64(1680), s.PendingPayout.Amount)
	require.Len(t, s.Monthly, 1)
	assert.Equal(t, time.March, s.Monthly[0].Month)

	empty, err := d.EarningsSummary(ctx, "idle-writer", earnings.Range{})
	require.NoError(t, err)
	assert.Zero(t, empty.ChapterCount)
	assert.True(t, empty.TotalEarnings.IsZero())

	_, err = d.EarningsSummary(ctx, "", earnings.Range{})
	assert.True(t, thesisdesk.IsValidation(err))

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err = d.EarningsSummary(ctx, writer, earnings.Range{From: from, To: from.AddDate(0, -1, 0)})
	assert.True(t, thesisdesk.IsValidation(err))
}

func TestCheckPayout(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()
	completeChapter(t, d, 1, 1000)

	s, err := d.CheckPayout(ctx, writer, thesisdesk.KES(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1120), s.PendingPayout.Amount)

	_, err = d.CheckPayout(ctx, writer, thesisdesk.KES(5000))
	assert.True(t, errors.Is(err, thesisdesk.ErrInsufficientEarnings))

	_, err = d.CheckPayout(ctx, writer, thesisdesk.KES(0))
	assert.True(t, thesisdesk.IsValidation(err))
}
