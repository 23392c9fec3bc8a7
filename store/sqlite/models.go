package sqlite

import (
	"encoding/json"
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

// Times are stored as unix milliseconds so they compare exactly in WHERE
// guards and sort numerically.

// ==================== Chapter models ====================

type chapterModel struct {
	grove.BaseModel `grove:"table:thesisdesk_chapters"`

	ID                 string `grove:"id,pk"`
	OwnerID            string `grove:"owner_id"`
	WriterID           string `grove:"writer_id"`
	Title              string `grove:"title"`
	Content            string `grove:"content"`
	Status             string `grove:"status"`
	ChapterNumber      int    `grove:"chapter_number"`
	WordCount          int    `grove:"word_count"`
	TargetWordCount    int    `grove:"target_word_count"`
	Level              string `grove:"level"`
	WorkType           string `grove:"work_type"`
	Urgency            string `grove:"urgency"`
	Currency           string `grove:"currency"`
	PricePerPageCents  int64  `grove:"price_per_page_cents"`
	Pages              int64  `grove:"pages"`
	BasePriceCents     int64  `grove:"base_price_cents"`
	UrgencyFactor      string `grove:"urgency_factor"`
	LevelFactor        string `grove:"level_factor"`
	WorkTypeFactor     string `grove:"work_type_factor"`
	CombinedFactor     string `grove:"combined_factor"`
	EstimatedCostCents int64  `grove:"estimated_cost_cents"`
	IsPaid             bool   `grove:"is_paid"`
	PaymentID          string `grove:"payment_id"`
	Files              string `grove:"files"`
	Feedback           string `grove:"feedback"`
	Revisions          string `grove:"revisions"`
	CompletedAt        *int64 `grove:"completed_at"`
	WriterPaidOut      bool   `grove:"writer_paid_out"`
	CreatedAt          int64  `grove:"created_at"`
	UpdatedAt          int64  `grove:"updated_at"`
}

type attachmentModel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	StorageKey  string `json:"storage_key"`
	UploadedBy  string `json:"uploaded_by"`
	UploadedAt  int64  `json:"uploaded_at"`
}

type feedbackModel struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at"`
}

type revisionModel struct {
	ID        string `json:"id"`
	Version   int    `json:"version"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
	EditedBy  string `json:"edited_by"`
	CreatedAt int64  `json:"created_at"`
}

func toChapterModel(c *chapter.Chapter) (*chapterModel, error) {
	files := make([]attachmentModel, len(c.Files))
	for i, f := range c.Files {
		files[i] = attachmentModel{
			ID:          f.ID.String(),
			Name:        f.Name,
			ContentType: f.ContentType,
			Size:        f.Size,
			StorageKey:  f.StorageKey,
			UploadedBy:  f.UploadedBy,
			UploadedAt:  toMillis(f.UploadedAt),
		}
	}
	feedback := make([]feedbackModel, len(c.Feedback))
	for i, f := range c.Feedback {
		feedback[i] = feedbackModel{
			ID:        f.ID.String(),
			AuthorID:  f.AuthorID,
			Message:   f.Message,
			CreatedAt: toMillis(f.CreatedAt),
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
			CreatedAt: toMillis(r.CreatedAt),
		}
	}

	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("marshal files: %w", err)
	}
	feedbackJSON, err := json.Marshal(feedback)
	if err != nil {
		return nil, fmt.Errorf("marshal feedback: %w", err)
	}
	revisionsJSON, err := json.Marshal(revisions)
	if err != nil {
		return nil, fmt.Errorf("marshal revisions: %w", err)
	}

	p := c.Pricing
	return &chapterModel{
		ID:                 c.ID.String(),
		OwnerID:            c.OwnerID,
		WriterID:           c.WriterID,
		Title:              c.Title,
		Content:            c.Content,
		Status:             string(c.Status),
		ChapterNumber:      c.ChapterNumber,
		WordCount:          c.WordCount,
		TargetWordCount:    c.TargetWordCount,
		Level:              string(c.Level),
		WorkType:           string(c.WorkType),
		Urgency:            string(c.Urgency),
		Currency:           p.TotalPrice.Currency,
		PricePerPageCents:  p.PricePerPage.Amount,
		Pages:              p.Pages,
		BasePriceCents:     p.BasePrice.Amount,
		UrgencyFactor:      p.Multipliers.Urgency.String(),
		LevelFactor:        p.Multipliers.Level.String(),
		WorkTypeFactor:     p.Multipliers.WorkType.String(),
		CombinedFactor:     p.Multipliers.Combined.String(),
		EstimatedCostCents: c.EstimatedCost().Amount,
		IsPaid:             c.IsPaid,
		PaymentID:          c.PaymentID.String(),
		Files:              string(filesJSON),
		Feedback:           string(feedbackJSON),
		Revisions:          string(revisionsJSON),
		CompletedAt:        toMillisPtr(c.CompletedAt),
		WriterPaidOut:      c.WriterPaidOut,
		CreatedAt:          toMillis(c.CreatedAt),
		UpdatedAt:          toMillis(c.UpdatedAt),
	}, nil
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
	snap, err := snapshotFromModel(m)
	if err != nil {
		return nil, err
	}

	c := &chapter.Chapter{
		Entity:          types.Entity{CreatedAt: fromMillis(m.CreatedAt), UpdatedAt: fromMillis(m.UpdatedAt)},
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
		CompletedAt:     fromMillisPtr(m.CompletedAt),
		WriterPaidOut:   m.WriterPaidOut,
	}

	var files []attachmentModel
	if err := unmarshalList(m.Files, &files); err != nil {
		return nil, fmt.Errorf("unmarshal files: %w", err)
	}
	for _, f := range files {
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
			UploadedAt:  fromMillis(f.UploadedAt),
		})
	}

	var feedback []feedbackModel
	if err := unmarshalList(m.Feedback, &feedback); err != nil {
		return nil, fmt.Errorf("unmarshal feedback: %w", err)
	}
	for _, f := range feedback {
		fid, err := id.ParseFeedbackID(f.ID)
		if err != nil {
			return nil, fmt.Errorf("parse feedback id: %w", err)
		}
		c.Feedback = append(c.Feedback, chapter.Feedback{
			ID:        fid,
			AuthorID:  f.AuthorID,
			Message:   f.Message,
			CreatedAt: fromMillis(f.CreatedAt),
		})
	}

	var revisions []revisionModel
	if err := unmarshalList(m.Revisions, &revisions); err != nil {
		return nil, fmt.Errorf("unmarshal revisions: %w", err)
	}
	for _, r := range revisions {
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
			CreatedAt: fromMillis(r.CreatedAt),
		})
	}
	return c, nil
}

func snapshotFromModel(m *chapterModel) (pricing.Snapshot, error) {
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
		TotalPrice: types.Money{Amount: m.EstimatedCostCents, Currency: m.Currency},
	}, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:thesisdesk_payments"`

	ID            string `grove:"id,pk"`
	OwnerID       string `grove:"owner_id"`
	ChapterID     string `grove:"chapter_id"`
	AmountCents   int64  `grove:"amount_cents"`
	Currency      string `grove:"currency"`
	Status        string `grove:"status"`
	PaymentMethod string `grove:"payment_method"`
	TransactionID string `grove:"transaction_id"`
	FailureReason string `grove:"failure_reason"`
	RefundReason  string `grove:"refund_reason"`
	CompletedAt   *int64 `grove:"completed_at"`
	FailedAt      *int64 `grove:"failed_at"`
	RefundedAt    *int64 `grove:"refunded_at"`
	CreatedAt     int64  `grove:"created_at"`
	UpdatedAt     int64  `grove:"updated_at"`
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
		CompletedAt:   toMillisPtr(p.CompletedAt),
		FailedAt:      toMillisPtr(p.FailedAt),
		RefundedAt:    toMillisPtr(p.RefundedAt),
		CreatedAt:     toMillis(p.CreatedAt),
		UpdatedAt:     toMillis(p.UpdatedAt),
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
		Entity:        types.Entity{CreatedAt: fromMillis(m.CreatedAt), UpdatedAt: fromMillis(m.UpdatedAt)},
		ID:            paymentID,
		OwnerID:       m.OwnerID,
		ChapterID:     chapterID,
		Amount:        types.Money{Amount: m.AmountCents, Currency: m.Currency},
		Status:        payment.Status(m.Status),
		PaymentMethod: payment.Method(m.PaymentMethod),
		TransactionID: m.TransactionID,
		FailureReason: m.FailureReason,
		RefundReason:  m.RefundReason,
		CompletedAt:   fromMillisPtr(m.CompletedAt),
		FailedAt:      fromMillisPtr(m.FailedAt),
		RefundedAt:    fromMillisPtr(m.RefundedAt),
	}, nil
}

// ==================== Helpers ====================

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func toMillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func fromMillisPtr(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := fromMillis(*v)
	return &t
}

func unmarshalList(raw string, dest any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}
