package chapter

import (
	"context"
	"time"

	"github.com/thesisdesk/thesisdesk/id"
)

// Store persists chapters. Method names carry the entity so the aggregate
// store can embed it alongside the payment store.
type Store interface {
	// CreateChapter fails with a duplicate error when the owner already has
	// a chapter with the same number.
	CreateChapter(ctx context.Context, c *Chapter) error
	GetChapter(ctx context.Context, chapterID id.ChapterID) (*Chapter, error)
	ListChapters(ctx context.Context, ownerID string, opts ListOpts) ([]*Chapter, error)
	// UpdateChapter replaces the chapter only if its stored updated_at still
	// equals prevUpdatedAt.
	UpdateChapter(ctx context.Context, c *Chapter, prevUpdatedAt time.Time) error
	// DeleteChapter removes c only while the stored chapter is unpaid and its
	// updated_at still equals c.UpdatedAt. Otherwise it fails with a conflict.
	DeleteChapter(ctx context.Context, c *Chapter) error
}

type ListOpts struct {
	Status   Status
	WriterID string
	Limit    int
	Offset   int
}
