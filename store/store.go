package store

import (
	"context"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/earnings"
	"github.com/thesisdesk/thesisdesk/payment"
)

// Store is the unified storage interface for all thesisdesk entities.
// Entity method names carry their type, so the sub-interfaces embed
// without conflicts.
type Store interface {
	chapter.Store
	payment.Store

	// EarningsSummary aggregates writerID's completed chapters in r.
	EarningsSummary(ctx context.Context, writerID, currency string, r earnings.Range) (earnings.Summary, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
