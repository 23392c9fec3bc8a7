package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/pricing"
	"github.com/thesisdesk/thesisdesk/types"
)

// ==================== Chapter models ====================

type chapterModel struct {
	grove.BaseModel `grove:"table:thesisdesk_chapters"`

	ID                 string            `grove:"id,pk"                bson:"_id"`
	OwnerID            string            `grove:"owner_id"             bson:"owner_id"`
	WriterID           string            `grove:"writer_id"            bson:"writer_id"`
	Title              string            `grove:"title"                bson:"title"`
	Content            string            `grove:"content"              bson:"content"`
	Status             string            `grove:"status"               bson:"status"`
	ChapterNumber      int               `grove:"chapter_number"       bson:"chapter_number"`
	WordCount          int               `grove:"word_count"           bson:"word_count"`
	TargetWordCount    int               `grove:"target_word_count"    bson:"target_word_count"`
	Level              string            `grove:"level"                bson:"level"`
	WorkType           string            `grove:"work_type"            bson:"work_type"`
	Urgency            string            `grove:"urgency"              bson:"urgency"`
	Pricing            snapshotModel     `grove:"pricing"              bson:"pricing"`
	EstimatedCostCents int64             `grove:"estimated_cost_cents" bson:"estimated_cost_cents"`
	IsPaid             bool              `grove:"is_paid"              bson:"is_paid"`
	PaymentID          string            `grove:"payment_id"           bson:"payment_id"`
	Files              []attachmentModel `grove:"files"                bson:"files"`
	Feedback           []feedbackModel   `grove:"feedback"             bson:"feedback"`
	Revisions          []revisionModel   `grove:"revisions"            bson:"revisions"`
	CompletedAt        *time.Time        `grove:"completed_at"         bson:"completed_at,omitempty"`
	WriterPaidOut      bool              `grove:"writer_paid_out"      bson:"writer_paid_out"`
	CreatedAt          time.Time         `grove:"created_at"           bson:"created_at"`
	UpdatedAt          time.Time         `grove:"updated_at"           bson:"updated_at"`
}

// snapshotModel keeps multipliers as decimal strings so they round-trip
// exactly.
type snapshotModel struct {
	Currency          string `bson:"currency"`
	PricePerPageCents int64  `bson:"price_per_page_cents"`
	Pages             int64  `bson:"pages"`
	BasePriceCents    int64  `bson:"base_price_cents"`
	UrgencyFactor     string `bson:"urgency_factor"`
	LevelFactor       string `bson:"level_factor"`
	WorkTypeFactor    string `bson:"work_type_factor"`
	CombinedFactor    string `bson:"combined_factor"`
	TotalPriceCents   int64  `bson:"total_price_cents"`
}

type attachmentModel struct {
	ID          string    `bson:"id"`
	Name        string    `bson:"name"`
	ContentType string    `bson:"content_type"`
	Size        int64     `bson:"size"`
	StorageKey  string    `bson:"storage_key"`
	UploadedBy  string    `bson:"uploaded_by"`
	UploadedAt  time.Time `bson:"uploaded_at"`
}

type feedbackModel struct {
	ID        string    `bson:"id"`
	AuthorID  string    `bson:"author_id"`
	Message   string    `bson:"message"`
	CreatedAt time.Time `bson:"created_at"`
}

type revisionModel struct {
	ID        string    `bson:"id"`
	Version   int       `bson:"version"`
	Content   string    `bson:"content"`
	WordCount int       `bson:"word_count"`
	EditedBy  string    `bson:"edited_by"`
	CreatedAt time.Time `bson:"created_at"`
}

func toChapterModel(c *chapter.Chapter) *chapterModel {
	files := make([]attachmentModel, len(c.Files))
	for i, f := range c.Files {
		files[i] = attachmentModel{
			ID:          f.ID.String(),
			Name:        f.Name,
			ContentType: f.ContentType,
			Size:        f.Size,
			StorageKey:  f.StorageKey,
			UploadedBy:  f.UploadedBy,
			UploadedAt:  ms(f.UploadedAt),
		}
	}
	feedback := make([]feedbackModel, len(c.Feedback))
	for i, f := range c.Feedback {
		feedback[i] = feedbackModel{
			ID:        f.ID.String(),
			AuthorID:  f.AuthorID,
			Message:   f.Message,
			CreatedAt: ms(f.CreatedAt),
		}
	}
	revisions := make([]revisionModel, len(c.Revisions))
	for i, r := range c.Revisions {
		revisions[i] = revisionModel{
			ID:        r.ID.String(),
			Version:   r.Version,
			Content:   r.Content,
			WordCount: r.WordCount,
			EditedBy:  r.EditedBy,
			CreatedAt: ms(r.CreatedAt),
		}
	}

	p := c.Pricing
	return &chapterModel{
		ID:              c.ID.String(),
		OwnerID:         c.OwnerID,
		WriterID:        c.WriterID,
		Title:           c.Title,
		Content:         c.Content,
		Status:          string(c.Status),
		ChapterNumber:   c.ChapterNumber,
		WordCount:       c.WordCount,
		TargetWordCount: c.TargetWordCount,
		Level:           string(c.Level),
		WorkType:        string(c.WorkType),
		Urgency:         string(c.Urgency),
		Pricing: snapshotModel{
			Currency:          p.TotalPrice.Currency,
			PricePerPageCents: p.PricePerPage.Amount,
			Pages:             p.Pages,
			BasePriceCents:    p.BasePrice.Amount,
			UrgencyFactor:     p.Multipliers.Urgency.String(),
			LevelFactor:       p.Multipliers.Level.String(),
			WorkTypeFactor:    p.Multipliers.WorkType.String(),
			CombinedFactor:    p.Multipliers.Combined.String(),
			TotalPriceCents:   p.TotalPrice.Amount,
		},
		EstimatedCostCents: c.EstimatedCost().Amount,
		IsPaid:             c.IsPaid,
		PaymentID:          c.PaymentID.String(),
		Files:              files,
		Feedback:           feedback,
		Revisions:          revisions,
		CompletedAt:        msPtr(c.CompletedAt),
		WriterPaidOut:      c.WriterPaidOut,
		CreatedAt:          ms(c.CreatedAt),
		UpdatedAt:          ms(c.UpdatedAt),
	}
}

func fromChapterModel(m *chapterModel) (*chapter.Chapter, error) {
	chapterID, err := id.ParseChapterID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse chapter id: %w", err)
	}
	paymentID, err := id.ParseOptional(m.PaymentID, id.PrefixPayment)
	if err != nil {
		return nil, fmt.Errorf("parse chapter payment id: %w", err)
	}
	snap, err := fromSnapshotModel(m.Pricing)
	if err != nil {
		return nil, err
	}

	c := &chapter.Chapter{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              chapterID,
		OwnerID:         m.OwnerID,
		WriterID:        m.WriterID,
		Title:           m.Title,
		Content:         m.Content,
		Status:          chapter.Status(m.Status),
		ChapterNumber:   m.ChapterNumber,
		WordCount:       m.WordCount,
		TargetWordCount: m.TargetWordCount,
		Level:           pricing.Level(m.Level),
		WorkType:        pricing.WorkType(m.WorkType),
		Urgency:         pricing.Urgency(m.Urgency),
		Pricing:         snap,
		IsPaid:          m.IsPaid,
		PaymentID:       paymentID,
		CompletedAt:     m.CompletedAt,
		WriterPaidOut:   m.WriterPaidOut,
	}

	for _, f := range m.Files {
		fid, err := id.ParseAttachmentID(f.ID)
		if err != nil {
			return nil, fmt.Errorf("parse attachment id: %w", err)
		}
		c.Files = append(c.Files, chapter.Attachment{
			ID:          fid,
			Name:        f.Name,
			ContentType: f.ContentType,
			Size:        f.Size,
			StorageKey:  f.StorageKey,
			UploadedBy:  f.UploadedBy,
			UploadedAt:  f.UploadedAt,
		})
	}
	for _, f := range m.Feedback {
		fid, err := id.ParseFeedbackID(f.ID)
		if err != nil {
			return nil, fmt.Errorf("parse feedback id: %w", err)
		}
		c.Feedback = append(c.Feedback, chapter.Feedback{
			ID:        fid,
			AuthorID:  f.AuthorID,
			Message:   f.Message,
			CreatedAt: f.CreatedAt,
		})
	}
	for _, r := range m.Revisions {
		rid, err := id.ParseRevisionID(r.ID)
		if err != nil {
			return nil, fmt.Errorf("parse revision id: %w", err)
		}
		c.Revisions = append(c.Revisions, chapter.Revision{
			ID:        rid,
			Version:   r.Version,
			Content:   r.Content,
			WordCount: r.WordCount,
			EditedBy:  r.EditedBy,
			CreatedAt: r.CreatedAt,
		})
	}
	return c, nil
}

func fromSnapshotModel(m snapshotModel) (pricing.Snapshot, error) {
	factors := make([]decimal.Decimal, 4)
	for i, s := range []string{m.UrgencyFactor, m.LevelFactor, m.WorkTypeFactor, m.CombinedFactor} {
		if s == "" {
			factors[i] = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return pricing.Snapshot{}, fmt.Errorf("parse pricing factor %q: %w", s, err)
		}
		factors[i] = d
	}

	return pricing.Snapshot{
		PricePerPage: types.Money{Amount: m.PricePerPageCents, Currency: m.Currency},
		Pages:        m.Pages,
		BasePrice:    types.Money{Amount: m.BasePriceCents, Currency: m.Currency},
		Multipliers: pricing.Multipliers{
			Urgency:  factors[0],
			Level:    factors[1],
			WorkType: factors[2],
			Combined: factors[3],
		},
		TotalPrice: types.Money{Amount: m.TotalPriceCents, Currency: m.Currency},
	}, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:thesisdesk_payments"`

	ID            string     `grove:"id,pk"          bson:"_id"`
	OwnerID       string     `grove:"owner_id"       bson:"owner_id"`
	ChapterID     string     `grove:"chapter_id"     bson:"chapter_id"`
	AmountCents   int64      `grove:"amount_cents"   bson:"amount_cents"`
	Currency      string     `grove:"currency"       bson:"currency"`
	Status        string     `grove:"status"         bson:"status"`
	PaymentMethod string     `grove:"payment_method" bson:"payment_method"`
	TransactionID string     `grove:"transaction_id" bson:"transaction_id"`
	FailureReason string     `grove:"failure_reason" bson:"failure_reason,omitempty"`
	RefundReason  string     `grove:"refund_reason"  bson:"refund_reason,omitempty"`
	CompletedAt   *time.Time `grove:"completed_at"   bson:"completed_at,omitempty"`
	FailedAt      *time.Time `grove:"failed_at"      bson:"failed_at,omitempty"`
	RefundedAt    *time.Time `grove:"refunded_at"    bson:"refunded_at,omitempty"`
	CreatedAt     time.Time  `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"     bson:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:            p.ID.String(),
		OwnerID:       p.OwnerID,
		ChapterID:     p.ChapterID.String(),
		AmountCents:   p.Amount.Amount,
		Currency:      p.Amount.Currency,
		Status:        string(p.Status),
		PaymentMethod: string(p.PaymentMethod),
		TransactionID: p.TransactionID,
		FailureReason: p.FailureReason,
		RefundReason:  p.RefundReason,
		CompletedAt:   msPtr(p.CompletedAt),
		FailedAt:      msPtr(p.FailedAt),
		RefundedAt:    msPtr(p.RefundedAt),
		CreatedAt:     ms(p.CreatedAt),
		UpdatedAt:     ms(p.UpdatedAt),
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	paymentID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse payment id: %w", err)
	}
	chapterID, err := id.ParseOptional(m.ChapterID, id.PrefixChapter)
	if err != nil {
		return nil, fmt.Errorf("parse payment chapter id: %w", err)
	}

	return &payment.Payment{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:            paymentID,
		OwnerID:       m.OwnerID,
		ChapterID:     chapterID,
		Amount:        types.Money{Amount: m.AmountCents, Currency: m.Currency},
		Status:        payment.Status(m.Status),
		PaymentMethod: payment.Method(m.PaymentMethod),
		TransactionID: m.TransactionID,
		FailureReason: m.FailureReason,
		RefundReason:  m.RefundReason,
		CompletedAt:   m.CompletedAt,
		FailedAt:      m.FailedAt,
		RefundedAt:    m.RefundedAt,
	}, nil
}

// ms truncates to the millisecond precision BSON dates keep, so values
// written and read back compare equal.
func ms(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func msPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := ms(*t)
	return &v
}
