package chapter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/pricing"
)

var (
	// ErrPricingLocked is returned when a paid chapter's pricing inputs change.
	ErrPricingLocked = errors.New("chapter: pricing attributes cannot change after payment")

	// ErrEmptyFeedback is returned for blank feedback messages.
	ErrEmptyFeedback = errors.New("chapter: feedback message is empty")
)

var markupTag = regexp.MustCompile(`<[^>]*>`)

// CountWords counts whitespace-separated words, ignoring markup tags left
// behind by the rich text editor.
func CountWords(content string) int {
	return len(strings.Fields(markupTag.ReplaceAllString(content, " ")))
}

// Validate checks the fields a caller supplies on create and update.
func (c *Chapter) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("chapter: title is required")
	}
	if c.ChapterNumber < 1 {
		return fmt.Errorf("chapter: chapter number must be at least 1, got %d", c.ChapterNumber)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("chapter: unknown status %q", c.Status)
	}
	return c.PricingRequest().Validate(true)
}

// Update is a partial edit. Nil fields are left untouched.
type Update struct {
	Title           *string           `json:"title,omitempty"`
	Content         *string           `json:"content,omitempty"`
	Status          *Status           `json:"status,omitempty"`
	ChapterNumber   *int              `json:"chapter_number,omitempty"`
	TargetWordCount *int              `json:"target_word_count,omitempty"`
	Level           *pricing.Level    `json:"level,omitempty"`
	WorkType        *pricing.WorkType `json:"work_type,omitempty"`
	Urgency         *pricing.Urgency  `json:"urgency,omitempty"`
}

// TouchesPricing reports whether u changes any quote input.
func (u Update) TouchesPricing() bool {
	return u.TargetWordCount != nil || u.Level != nil || u.WorkType != nil || u.Urgency != nil
}

// Apply merges u into c. It records a revision when the content changes,
// stamps CompletedAt on the first move to completed and reports whether the
// chapter needs a new quote. The result is validated before returning.
func (c *Chapter) Apply(u Update, editor string, now time.Time) (reprice bool, err error) {
	if u.TouchesPricing() && c.IsPaid {
		before := c.PricingRequest()
		after := before
		mergePricing(&after, u)
		if after != before {
			return false, ErrPricingLocked
		}
	}

	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.ChapterNumber != nil {
		c.ChapterNumber = *u.ChapterNumber
	}
	if u.Content != nil && *u.Content != c.Content {
		c.SetContent(*u.Content, editor, now)
	}
	if u.Status != nil {
		c.Status = *u.Status
		if c.Status == StatusCompleted && c.CompletedAt == nil {
			t := now.UTC()
			c.CompletedAt = &t
		}
	}
	if u.TouchesPricing() {
		before := c.PricingRequest()
		req := before
		mergePricing(&req, u)
		c.TargetWordCount = req.TargetWordCount
		c.Level = req.Level
		c.WorkType = req.WorkType
		c.Urgency = req.Urgency
		reprice = req != before
	}

	return reprice, c.Validate()
}

// SetContent replaces the content, recounts words and appends a revision
// snapshot numbered one past the latest.
func (c *Chapter) SetContent(content, editor string, now time.Time) {
	c.Content = content
	c.WordCount = CountWords(content)
	c.Revisions = append(c.Revisions, Revision{
		ID:        id.NewRevisionID(),
		Version:   c.LatestVersion() + 1,
		Content:   content,
		WordCount: c.WordCount,
		EditedBy:  editor,
		CreatedAt: now.UTC(),
	})
}

// LatestVersion returns the highest revision version, or 0.
func (c *Chapter) LatestVersion() int {
	v := 0
	for _, r := range c.Revisions {
		if r.Version > v {
			v = r.Version
		}
	}
	return v
}

// AddFeedback appends a feedback entry.
func (c *Chapter) AddFeedback(authorID, message string, now time.Time) (Feedback, error) {
	if strings.TrimSpace(message) == "" {
		return Feedback{}, ErrEmptyFeedback
	}
	fb := Feedback{
		ID:        id.NewFeedbackID(),
		AuthorID:  authorID,
		Message:   message,
		CreatedAt: now.UTC(),
	}
	c.Feedback = append(c.Feedback, fb)
	return fb, nil
}

func mergePricing(r *pricing.Request, u Update) {
	if u.TargetWordCount != nil {
		r.TargetWordCount = *u.TargetWordCount
	}
	if u.Level != nil {
		r.Level = *u.Level
	}
	if u.WorkType != nil {
		r.WorkType = *u.WorkType
	}
	if u.Urgency != nil {
		r.Urgency = *u.Urgency
	}
}
