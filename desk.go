package thesisdesk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/earnings"
	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/plugin"
	"github.com/thesisdesk/thesisdesk/pricing"
	"github.com/thesisdesk/thesisdesk/storage"
	"github.com/thesisdesk/thesisdesk/store"
	"github.com/thesisdesk/thesisdesk/types"
)

// DefaultMaxAttachmentSize is 25 MiB.
const DefaultMaxAttachmentSize int64 = 25 << 20

// Desk is the chapter, payment and earnings engine.
type Desk struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	calc    pricing.Calculator
	blobs   storage.Blobs
	now     func() time.Time
	txnID   payment.TxnIDGenerator

	maxAttachmentSize int64
}

// New creates a new Desk instance.
func New(s store.Store, opts ...Option) *Desk {
	d := &Desk{
		store:             s,
		plugins:           plugin.NewRegistry(),
		logger:            slog.Default(),
		calc:              pricing.NewCalculator(pricing.DefaultPricePerPage),
		blobs:             storage.NewMemoryBlobs(),
		now:               time.Now,
		txnID:             payment.NewTransactionID,
		maxAttachmentSize: DefaultMaxAttachmentSize,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Option configures a Desk instance.
type Option func(*Desk)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Desk) {
		d.logger = logger
		d.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(d *Desk) {
		_ = d.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPricePerPage sets the per-page rate and thereby the desk currency.
func WithPricePerPage(m types.Money) Option {
	return func(d *Desk) {
		d.calc = pricing.NewCalculator(m)
	}
}

// WithBlobs sets where attachment bytes go. Defaults to memory.
func WithBlobs(b storage.Blobs) Option {
	return func(d *Desk) {
		d.blobs = b
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Desk) {
		d.now = now
	}
}

// WithTxnIDGenerator overrides how missing transaction IDs are generated.
func WithTxnIDGenerator(gen payment.TxnIDGenerator) Option {
	return func(d *Desk) {
		d.txnID = gen
	}
}

// WithMaxAttachmentSize caps a single upload in bytes.
func WithMaxAttachmentSize(n int64) Option {
	return func(d *Desk) {
		if n > 0 {
			d.maxAttachmentSize = n
		}
	}
}

// Start migrates the store and initializes plugins.
func (d *Desk) Start(ctx context.Context) error {
	if err := d.store.Migrate(ctx); err != nil {
		return err
	}

	d.plugins.EmitInit(ctx, d)

	d.logger.Info("thesisdesk started",
		"price_per_page", d.calc.PricePerPage.String(),
		"plugins", d.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (d *Desk) Stop() error {
	d.plugins.EmitShutdown(context.Background())
	return d.store.Close()
}

// Store returns the underlying store.
func (d *Desk) Store() store.Store { return d.store }

// Plugins returns the plugin registry.
func (d *Desk) Plugins() *plugin.Registry { return d.plugins }

// Currency is the currency all quotes and earnings use.
func (d *Desk) Currency() string { return d.calc.Currency() }

// ──────────────────────────────────────────────────
// Pricing
// ──────────────────────────────────────────────────

// Quote prices a chapter without persisting anything. Unknown enum values
// are rejected here even though the calculator tolerates them.
func (d *Desk) Quote(ctx context.Context, req pricing.Request) (pricing.Snapshot, error) {
	if err := req.Validate(true); err != nil {
		return pricing.Snapshot{}, Invalid("quote", err)
	}
	snap, err := d.calc.Quote(req)
	if err != nil {
		return pricing.Snapshot{}, Invalid("quote", err)
	}

	d.plugins.EmitQuoteComputed(ctx, req, snap)
	return snap, nil
}

// ──────────────────────────────────────────────────
// Chapters
// ──────────────────────────────────────────────────

// CreateChapter prices and stores a new chapter. Server-owned fields such
// as payment linkage, word count and history are reset.
func (d *Desk) CreateChapter(ctx context.Context, ch *chapter.Chapter) error {
	if strings.TrimSpace(ch.OwnerID) == "" {
		return Invalid("owner_id", errors.New("owner is required"))
	}

	now := d.now()
	content := ch.Content

	ch.ID = id.NewChapterID()
	ch.Entity = types.NewEntity(now)
	ch.IsPaid = false
	ch.PaymentID = id.Nil
	ch.Files = nil
	ch.Feedback = nil
	ch.Revisions = nil
	ch.WriterPaidOut = false
	ch.CompletedAt = nil
	if ch.Status == "" {
		ch.Status = chapter.StatusDraft
	}
	if ch.Status == chapter.StatusCompleted {
		t := now.UTC()
		ch.CompletedAt = &t
	}

	ch.Content = ""
	ch.WordCount = 0
	if content != "" {
		ch.SetContent(content, ch.OwnerID, now)
	}

	if err := ch.Validate(); err != nil {
		return Invalid("chapter", err)
	}
	snap, err := d.calc.Quote(ch.PricingRequest())
	if err != nil {
		return Invalid("chapter", err)
	}
	ch.Pricing = snap

	if err := d.store.CreateChapter(ctx, ch); err != nil {
		return err
	}

	d.logger.Debug("chapter created",
		"chapter_id", ch.ID.String(),
		"owner_id", ch.OwnerID,
		"total_price", ch.Pricing.TotalPrice.String(),
	)
	d.plugins.EmitChapterCreated(ctx, ch)
	return nil
}

// GetChapter returns a chapter visible to actorID, its owner or its
// assigned writer. Anyone else gets ErrChapterNotFound.
func (d *Desk) GetChapter(ctx context.Context, actorID string, chapterID id.ChapterID) (*chapter.Chapter, error) {
	ch, err := d.store.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if !canView(ch, actorID) {
		return nil, ErrChapterNotFound
	}
	return ch, nil
}

// ListChapters returns ownerID's chapters ordered by chapter number.
func (d *Desk) ListChapters(ctx context.Context, ownerID string, opts chapter.ListOpts) ([]*chapter.Chapter, error) {
	return d.store.ListChapters(ctx, ownerID, opts)
}

// UpdateChapter applies u on behalf of actorID. Content edits append a
// revision and changes to pricing inputs requote the chapter.
func (d *Desk) UpdateChapter(ctx context.Context, actorID string, chapterID id.ChapterID, u chapter.Update) (*chapter.Chapter, error) {
	before, err := d.GetChapter(ctx, actorID, chapterID)
	if err != nil {
		return nil, err
	}

	now := d.now()
	next := before.Clone()
	reprice, err := next.Apply(u, actorID, now)
	if errors.Is(err, chapter.ErrPricingLocked) {
		return nil, err
	}
	if err != nil {
		return nil, Invalid("chapter", err)
	}
	if reprice {
		snap, err := d.calc.Quote(next.PricingRequest())
		if err != nil {
			return nil, Invalid("chapter", err)
		}
		next.Pricing = snap
	}
	next.Touch(now)

	if err := d.store.UpdateChapter(ctx, next, before.UpdatedAt); err != nil {
		return nil, err
	}

	d.plugins.EmitChapterUpdated(ctx, before, next)
	return next, nil
}

// DeleteChapter removes an unpaid chapter and its attachment bytes. A payment
// completed or an edit made since the chapter was read yields ErrConflict.
func (d *Desk) DeleteChapter(ctx context.Context, ownerID string, chapterID id.ChapterID) error {
	ch, err := d.ownedChapter(ctx, ownerID, chapterID)
	if err != nil {
		return err
	}
	if ch.IsPaid {
		return ErrChapterPaid
	}

	if err := d.store.DeleteChapter(ctx, ch); err != nil {
		return err
	}

	for _, f := range ch.Files {
		if err := d.blobs.Delete(ctx, f.StorageKey); err != nil {
			d.logger.Warn("failed to delete attachment blob",
				"chapter_id", chapterID.String(),
				"key", f.StorageKey,
				"error", err,
			)
		}
	}

	d.plugins.EmitChapterDeleted(ctx, ch)
	return nil
}

// AddFeedback appends a feedback entry from authorID.
func (d *Desk) AddFeedback(ctx context.Context, authorID string, chapterID id.ChapterID, message string) (chapter.Feedback, error) {
	ch, err := d.GetChapter(ctx, authorID, chapterID)
	if err != nil {
		return chapter.Feedback{}, err
	}

	now := d.now()
	next := ch.Clone()
	fb, err := next.AddFeedback(authorID, message, now)
	if err != nil {
		return chapter.Feedback{}, Invalid("message", err)
	}
	next.Touch(now)

	if err := d.store.UpdateChapter(ctx, next, ch.UpdatedAt); err != nil {
		return chapter.Feedback{}, err
	}

	d.plugins.EmitFeedbackAdded(ctx, next, fb)
	return fb, nil
}

// AttachFile streams r into blob storage and records it on the chapter.
// The blob is removed again if the chapter write fails.
func (d *Desk) AttachFile(ctx context.Context, actorID string, chapterID id.ChapterID, name, contentType string, r io.Reader) (chapter.Attachment, error) {
	if strings.TrimSpace(name) == "" {
		return chapter.Attachment{}, Invalid("name", errors.New("file name is required"))
	}
	ch, err := d.GetChapter(ctx, actorID, chapterID)
	if err != nil {
		return chapter.Attachment{}, err
	}

	now := d.now()
	att := chapter.Attachment{
		ID:          id.NewAttachmentID(),
		Name:        name,
		ContentType: contentType,
		UploadedBy:  actorID,
		UploadedAt:  now.UTC(),
	}
	att.StorageKey = storage.Key(ch.ID.String(), att.ID.String(), name)

	n, err := d.blobs.Put(ctx, att.StorageKey, io.LimitReader(r, d.maxAttachmentSize+1))
	if err != nil {
		return chapter.Attachment{}, err
	}
	if n > d.maxAttachmentSize {
		d.discardBlob(ctx, att.StorageKey)
		return chapter.Attachment{}, ErrAttachmentTooLarge
	}
	att.Size = n

	next := ch.Clone()
	next.Files = append(next.Files, att)
	next.Touch(now)

	if err := d.store.UpdateChapter(ctx, next, ch.UpdatedAt); err != nil {
		d.discardBlob(ctx, att.StorageKey)
		return chapter.Attachment{}, err
	}

	d.plugins.EmitAttachmentAdded(ctx, next, att)
	return att, nil
}

// OpenAttachment returns the attachment metadata and a reader for its bytes.
func (d *Desk) OpenAttachment(ctx context.Context, actorID string, chapterID id.ChapterID, attachmentID id.AttachmentID) (chapter.Attachment, io.ReadCloser, error) {
	ch, err := d.GetChapter(ctx, actorID, chapterID)
	if err != nil {
		return chapter.Attachment{}, nil, err
	}
	for _, f := range ch.Files {
		if f.ID.Equal(attachmentID) {
			rc, err := d.blobs.Open(ctx, f.StorageKey)
			if err != nil {
				return chapter.Attachment{}, nil, err
			}
			return f, rc, nil
		}
	}
	return chapter.Attachment{}, nil, ErrNotFound
}

// AssignWriter sets the writer who works on, and earns from, a chapter.
// It is an administrative action and is not owner scoped.
func (d *Desk) AssignWriter(ctx context.Context, chapterID id.ChapterID, writerID string) (*chapter.Chapter, error) {
	before, err := d.store.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	next := before.Clone()
	next.WriterID = strings.TrimSpace(writerID)
	next.Touch(d.now())

	if err := d.store.UpdateChapter(ctx, next, before.UpdatedAt); err != nil {
		return nil, err
	}

	d.logger.Info("writer assigned",
		"chapter_id", chapterID.String(),
		"writer_id", next.WriterID,
	)
	d.plugins.EmitChapterUpdated(ctx, before, next)
	return next, nil
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

// InitiatePayment opens a pending payment for the chapter's quoted total.
func (d *Desk) InitiatePayment(ctx context.Context, ownerID string, chapterID id.ChapterID, method payment.Method) (*payment.Payment, error) {
	ch, err := d.ownedChapter(ctx, ownerID, chapterID)
	if err != nil {
		return nil, err
	}

	p, err := payment.New(ownerID, ch, method, d.now())
	if errors.Is(err, payment.ErrInvalidMethod) || errors.Is(err, payment.ErrNegativeAmount) {
		return nil, Invalid("payment", err)
	}
	if err != nil {
		return nil, err
	}

	if err := d.store.CreatePayment(ctx, &p); err != nil {
		return nil, err
	}

	d.logger.Info("payment initiated",
		"payment_id", p.ID.String(),
		"chapter_id", chapterID.String(),
		"amount", p.Amount.String(),
		"method", string(p.PaymentMethod),
	)
	d.plugins.EmitPaymentCreated(ctx, &p)
	return &p, nil
}

// GetPayment returns ownerID's payment.
func (d *Desk) GetPayment(ctx context.Context, ownerID string, paymentID id.PaymentID) (*payment.Payment, error) {
	p, err := d.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

// ListPayments returns ownerID's payments, newest first.
func (d *Desk) ListPayments(ctx context.Context, ownerID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	return d.store.ListPayments(ctx, ownerID, opts)
}

// TransitionRequest moves a payment to a new status.
type TransitionRequest struct {
	PaymentID     id.PaymentID
	OwnerID       string
	Status        payment.Status
	TransactionID string
	Reason        string
}

// TransitionResult is the payment after a transition together with the
// linked chapter as stored afterwards. Chapter is nil when the payment has
// no chapter.
type TransitionResult struct {
	Payment *payment.Payment `json:"payment"`
	Chapter *chapter.Chapter `json:"chapter,omitempty"`
}

// TransitionPayment applies req and writes the payment and chapter together.
// A concurrent change to either record yields ErrConflict.
func (d *Desk) TransitionPayment(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	if !req.Status.Valid() {
		return nil, Invalid("status", errors.New("unknown payment status "+string(req.Status)))
	}

	p, err := d.GetPayment(ctx, req.OwnerID, req.PaymentID)
	if err != nil {
		return nil, err
	}

	ch, err := d.linkedChapter(ctx, p)
	if err != nil {
		return nil, err
	}
	if ch == nil && p.HasChapter() && req.Status == payment.StatusCompleted {
		return nil, ErrChapterNotFound
	}

	out, err := payment.Transition(*p, ch, payment.Request{
		Status:        req.Status,
		TransactionID: req.TransactionID,
		Reason:        req.Reason,
	}, d.now(), d.txnID)
	if err != nil {
		return nil, err
	}

	change := payment.Change{Payment: &out.Payment, From: out.From, Chapter: out.Chapter}
	if ch != nil {
		change.ChapterUpdatedAt = ch.UpdatedAt
	}
	if err := d.store.ApplyPaymentTransition(ctx, change); err != nil {
		return nil, err
	}

	res := &TransitionResult{Payment: &out.Payment, Chapter: ch}
	if out.Chapter != nil {
		res.Chapter = out.Chapter
	}

	d.logger.Info("payment transitioned",
		"payment_id", p.ID.String(),
		"from", string(out.From),
		"to", string(out.Payment.Status),
		"transaction_id", out.Payment.TransactionID,
	)
	d.plugins.EmitPaymentTransitioned(ctx, res.Payment, out.From, res.Chapter, req.Reason)
	return res, nil
}

// DeletePayment removes a pending or failed payment and clears the
// chapter's link to it.
func (d *Desk) DeletePayment(ctx context.Context, ownerID string, paymentID id.PaymentID) error {
	p, err := d.GetPayment(ctx, ownerID, paymentID)
	if err != nil {
		return err
	}

	ch, err := d.linkedChapter(ctx, p)
	if err != nil {
		return err
	}

	next, err := payment.PrepareDelete(*p, ch, d.now())
	if err != nil {
		return err
	}

	change := payment.Change{Payment: p, From: p.Status, Chapter: next}
	if ch != nil {
		change.ChapterUpdatedAt = ch.UpdatedAt
	}
	if err := d.store.DeletePayment(ctx, change); err != nil {
		return err
	}

	d.logger.Info("payment deleted",
		"payment_id", p.ID.String(),
		"status", string(p.Status),
	)
	d.plugins.EmitPaymentDeleted(ctx, p)
	return nil
}

// ──────────────────────────────────────────────────
// Earnings
// ──────────────────────────────────────────────────

// EarningsSummary aggregates writerID's completed chapters in r.
func (d *Desk) EarningsSummary(ctx context.Context, writerID string, r earnings.Range) (earnings.Summary, error) {
	if strings.TrimSpace(writerID) == "" {
		return earnings.Summary{}, Invalid("writer_id", errors.New("writer is required"))
	}
	if err := r.Validate(); err != nil {
		return earnings.Summary{}, Invalid("range", err)
	}
	return d.store.EarningsSummary(ctx, writerID, d.calc.Currency(), r)
}

// CheckPayout validates that writerID's pending earnings cover amount.
// Nothing is recorded; the summary is returned either way.
func (d *Desk) CheckPayout(ctx context.Context, writerID string, amount types.Money) (earnings.Summary, error) {
	s, err := d.EarningsSummary(ctx, writerID, earnings.Range{})
	if err != nil {
		return earnings.Summary{}, err
	}

	checkErr := earnings.CheckPayout(s, amount)
	d.plugins.EmitPayoutChecked(ctx, writerID, amount, checkErr)

	if checkErr != nil && !errors.Is(checkErr, earnings.ErrInsufficientEarnings) {
		return s, Invalid("amount", checkErr)
	}
	return s, checkErr
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func canView(ch *chapter.Chapter, actorID string) bool {
	if actorID == "" {
		return false
	}
	return ch.OwnerID == actorID || ch.WriterID == actorID
}

func (d *Desk) ownedChapter(ctx context.Context, ownerID string, chapterID id.ChapterID) (*chapter.Chapter, error) {
	ch, err := d.store.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if ownerID == "" || ch.OwnerID != ownerID {
		return nil, ErrChapterNotFound
	}
	return ch, nil
}

// linkedChapter loads p's chapter. A chapter deleted since the payment was
// opened yields nil.
func (d *Desk) linkedChapter(ctx context.Context, p *payment.Payment) (*chapter.Chapter, error) {
	if !p.HasChapter() {
		return nil, nil
	}
	ch, err := d.store.GetChapter(ctx, p.ChapterID)
	if errors.Is(err, ErrChapterNotFound) {
		d.logger.Warn("payment references missing chapter",
			"payment_id", p.ID.String(),
			"chapter_id", p.ChapterID.String(),
		)
		return nil, nil
	}
	return ch, err
}

func (d *Desk) discardBlob(ctx context.Context, key string) {
	if err := d.blobs.Delete(ctx, key); err != nil {
		d.logger.Warn("failed to discard attachment blob", "key", key, "error", err)
	}
}
