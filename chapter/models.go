package chapter

import (
	"time"

	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/pricing"
	"github.com/thesisdesk/thesisdesk/types"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRevision   Status = "revision"
	StatusApproved   Status = "approved"
)

// Valid reports whether s is a known chapter status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusCompleted, StatusRevision, StatusApproved:
		return true
	}
	return false
}

type Chapter struct {
	types.Entity
	ID              id.ChapterID     `json:"id"`
	OwnerID         string           `json:"owner_id"`
	WriterID        string           `json:"writer_id,omitempty"`
	Title           string           `json:"title"`
	Content         string           `json:"content"`
	Status          Status           `json:"status"`
	ChapterNumber   int              `json:"chapter_number"`
	WordCount       int              `json:"word_count"`
	TargetWordCount int              `json:"target_word_count"`
	Level           pricing.Level    `json:"level"`
	WorkType        pricing.WorkType `json:"work_type"`
	Urgency         pricing.Urgency  `json:"urgency"`
	Pricing         pricing.Snapshot `json:"pricing"`
	IsPaid          bool             `json:"is_paid"`
	PaymentID       id.PaymentID     `json:"payment_id"`
	Files           []Attachment     `json:"files"`
	Feedback        []Feedback       `json:"feedback"`
	Revisions       []Revision       `json:"revisions"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	WriterPaidOut   bool             `json:"writer_paid_out"`
}

type Attachment struct {
	ID          id.AttachmentID `json:"id"`
	Name        string          `json:"name"`
	ContentType string          `json:"content_type"`
	Size        int64           `json:"size"`
	StorageKey  string          `json:"storage_key"`
	UploadedBy  string          `json:"uploaded_by"`
	UploadedAt  time.Time       `json:"uploaded_at"`
}

type Feedback struct {
	ID        id.FeedbackID `json:"id"`
	AuthorID  string        `json:"author_id"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"`
}

type Revision struct {
	ID        id.RevisionID `json:"id"`
	Version   int           `json:"version"`
	Content   string        `json:"content"`
	WordCount int           `json:"word_count"`
	EditedBy  string        `json:"edited_by"`
	CreatedAt time.Time     `json:"created_at"`
}

// EstimatedCost is the quoted total the writer's share is computed from.
func (c *Chapter) EstimatedCost() types.Money {
	return c.Pricing.TotalPrice
}

// PricingRequest returns the attributes that feed the calculator.
func (c *Chapter) PricingRequest() pricing.Request {
	return pricing.Request{
		TargetWordCount: c.TargetWordCount,
		Level:           c.Level,
		WorkType:        c.WorkType,
		Urgency:         c.Urgency,
	}
}

// LinkedTo reports whether the chapter currently references paymentID.
func (c *Chapter) LinkedTo(paymentID id.PaymentID) bool {
	return !c.PaymentID.IsNil() && c.PaymentID.Equal(paymentID)
}

// Clone returns a deep copy so callers can mutate freely.
func (c *Chapter) Clone() *Chapter {
	cp := *c
	cp.Files = append([]Attachment(nil), c.Files...)
	cp.Feedback = append([]Feedback(nil), c.Feedback...)
	cp.Revisions = append([]Revision(nil), c.Revisions...)
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
