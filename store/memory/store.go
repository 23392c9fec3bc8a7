// Package memory is an in-process store.Store for tests and single-node
// development. Every compound payment write happens under one lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/thesisdesk/thesisdesk"
	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/earnings"
	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/payment"
)

type Store struct {
	mu sync.RWMutex

	chapters map[string]*chapter.Chapter
	payments map[string]*payment.Payment
}

func New() *Store {
	return &Store{
		chapters: make(map[string]*chapter.Chapter),
		payments: make(map[string]*payment.Payment),
	}
}

// ──────────────────────────────────────────────────
// Chapter Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateChapter(_ context.Context, c *chapter.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chapters[c.ID.String()]; exists {
		return thesisdesk.ErrAlreadyExists
	}
	if s.numberTaken(c) {
		return thesisdesk.ErrDuplicateChapterNumber
	}
	s.chapters[c.ID.String()] = c.Clone()
	return nil
}

func (s *Store) GetChapter(_ context.Context, chapterID id.ChapterID) (*chapter.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.chapters[chapterID.String()]; ok {
		return c.Clone(), nil
	}
	return nil, thesisdesk.ErrChapterNotFound
}

func (s *Store) ListChapters(_ context.Context, ownerID string, opts chapter.ListOpts) ([]*chapter.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*chapter.Chapter, 0)
	for _, c := range s.chapters {
		if c.OwnerID != ownerID {
			continue
		}
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		if opts.WriterID != "" && c.WriterID != opts.WriterID {
			continue
		}
		result = append(result, c.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ChapterNumber < result[j].ChapterNumber
	})

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateChapter(_ context.Context, c *chapter.Chapter, prevUpdatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.chapters[c.ID.String()]
	if !ok {
		return thesisdesk.ErrChapterNotFound
	}
	if !stored.UpdatedAt.Equal(prevUpdatedAt) {
		return thesisdesk.ErrConflict
	}
	if s.numberTaken(c) {
		return thesisdesk.ErrDuplicateChapterNumber
	}
	s.chapters[c.ID.String()] = c.Clone()
	return nil
}

func (s *Store) DeleteChapter(_ context.Context, c *chapter.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.chapters[c.ID.String()]
	if !ok {
		return thesisdesk.ErrChapterNotFound
	}
	if stored.IsPaid || !stored.UpdatedAt.Equal(c.UpdatedAt) {
		return thesisdesk.ErrConflict
	}
	delete(s.chapters, c.ID.String())
	return nil
}

// numberTaken reports whether another chapter of c's owner uses c's number.
// Callers hold the lock.
func (s *Store) numberTaken(c *chapter.Chapter) bool {
	for _, other := range s.chapters {
		if other.OwnerID == c.OwnerID && other.ChapterNumber == c.ChapterNumber && !other.ID.Equal(c.ID) {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────
// Payment Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreatePayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID.String()]; exists {
		return thesisdesk.ErrAlreadyExists
	}
	if p.HasChapter() {
		ch, ok := s.chapters[p.ChapterID.String()]
		if !ok {
			return thesisdesk.ErrChapterNotFound
		}
		if ch.IsPaid {
			return thesisdesk.ErrChapterAlreadyPaid
		}
	}
	if s.txnTaken(p) {
		return thesisdesk.ErrAlreadyExists
	}

	cp := *p
	s.payments[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPayment(_ context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payments[paymentID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, thesisdesk.ErrPaymentNotFound
}

func (s *Store) ListPayments(_ context.Context, ownerID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if p.OwnerID != ownerID {
			continue
		}
		if !opts.ChapterID.IsNil() && !p.ChapterID.Equal(opts.ChapterID) {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ApplyPaymentTransition(_ context.Context, c payment.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.payments[c.Payment.ID.String()]
	if !ok {
		return thesisdesk.ErrPaymentNotFound
	}
	if stored.Status != c.From {
		return thesisdesk.ErrConflict
	}
	if s.txnTaken(c.Payment) {
		return thesisdesk.ErrAlreadyExists
	}
	if err := s.checkChapter(c); err != nil {
		return err
	}

	cp := *c.Payment
	s.payments[cp.ID.String()] = &cp
	if c.Chapter != nil {
		s.chapters[c.Chapter.ID.String()] = c.Chapter.Clone()
	}
	return nil
}

func (s *Store) DeletePayment(_ context.Context, c payment.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.payments[c.Payment.ID.String()]
	if !ok {
		return thesisdesk.ErrPaymentNotFound
	}
	if stored.Status != c.From {
		return thesisdesk.ErrConflict
	}
	if !payment.CanDelete(*stored) {
		return thesisdesk.ErrNotDeletable
	}
	if err := s.checkChapter(c); err != nil {
		return err
	}

	delete(s.payments, c.Payment.ID.String())
	if c.Chapter != nil {
		s.chapters[c.Chapter.ID.String()] = c.Chapter.Clone()
	}
	return nil
}

// checkChapter verifies the chapter in c has not moved since it was read.
// Callers hold the lock.
func (s *Store) checkChapter(c payment.Change) error {
	if c.Chapter == nil {
		return nil
	}
	stored, ok := s.chapters[c.Chapter.ID.String()]
	if !ok {
		return thesisdesk.ErrChapterNotFound
	}
	if !stored.UpdatedAt.Equal(c.ChapterUpdatedAt) {
		return thesisdesk.ErrConflict
	}
	return nil
}

// txnTaken reports whether another payment already uses p's transaction ID.
func (s *Store) txnTaken(p *payment.Payment) bool {
	if p.TransactionID == "" {
		return false
	}
	for _, other := range s.payments {
		if other.TransactionID == p.TransactionID && !other.ID.Equal(p.ID) {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────
// Earnings
// ──────────────────────────────────────────────────

func (s *Store) EarningsSummary(_ context.Context, writerID, currency string, r earnings.Range) (earnings.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chapters := make([]*chapter.Chapter, 0)
	for _, c := range s.chapters {
		if c.WriterID == writerID {
			chapters = append(chapters, c)
		}
	}
	return earnings.Summarize(writerID, currency, chapters, r), nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

func page[T any](items []T, offset, limit int) []T {
	start := min(max(offset, 0), len(items))
	if limit <= 0 || limit > len(items)-start {
		return items[start:]
	}
	return items[start : start+limit]
}
