// Package earnings computes what writers earn from completed chapters.
//
// A writer earns WriterSharePercent of each completed chapter's quoted cost,
// rounded half up to the minor unit. Summaries are built from month buckets
// so a store can aggregate in the database and hand the buckets to Build.
package earnings

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/types"
)

// WriterSharePercent is the writer's cut of a chapter's cost.
const WriterSharePercent = 70

var (
	ErrInsufficientEarnings = errors.New("earnings: requested payout exceeds pending earnings")
	ErrInvalidPayoutAmount  = errors.New("earnings: payout amount must be positive")
)

// WriterEarnings returns the writer's share of cost.
func WriterEarnings(cost types.Money) types.Money {
	return cost.Percent(WriterSharePercent)
}

// Range bounds completion time. From is inclusive, To exclusive, and a zero
// bound is open.
type Range struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside r.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Validate rejects inverted ranges.
func (r Range) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return fmt.Errorf("earnings: range start %s is not before end %s", r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
	}
	return nil
}

// MonthlyEarnings is one month of a writer's completed work.
type MonthlyEarnings struct {
	Year         int         `json:"year"`
	Month        time.Month  `json:"month"`
	Earnings     types.Money `json:"earnings"`
	ChapterCount int         `json:"chapter_count"`
	Words        int64       `json:"words"`
}

// Summary is the aggregate for one writer.
type Summary struct {
	WriterID        string            `json:"writer_id"`
	TotalEarnings   types.Money       `json:"total_earnings"`
	ChapterCount    int               `json:"chapter_count"`
	AverageEarnings types.Money       `json:"average_earnings"`
	AverageWords    int64             `json:"average_words"`
	PendingPayout   types.Money       `json:"pending_payout"`
	Monthly         []MonthlyEarnings `json:"monthly"`
}

// Bucket is the raw per-month aggregate. Amounts are minor units.
type Bucket struct {
	Year     int
	Month    time.Month
	Earnings int64
	Pending  int64
	Chapters int
	Words    int64
}

// CompletionTime is the instant a chapter counts toward earnings. Chapters
// completed before CompletedAt was tracked fall back to UpdatedAt.
func CompletionTime(c *chapter.Chapter) time.Time {
	if c.CompletedAt != nil {
		return c.CompletedAt.UTC()
	}
	return c.UpdatedAt.UTC()
}

// Counts reports whether c contributes to writerID's earnings in r.
func Counts(c *chapter.Chapter, writerID string, r Range) bool {
	return c.Status == chapter.StatusCompleted &&
		c.WriterID == writerID &&
		r.Contains(CompletionTime(c))
}

// Summarize aggregates chapters for writerID in currency. Chapters quoted in
// another currency are skipped.
func Summarize(writerID, currency string, chapters []*chapter.Chapter, r Range) Summary {
	byMonth := make(map[[2]int]*Bucket)
	for _, c := range chapters {
		if !Counts(c, writerID, r) || c.EstimatedCost().Currency != currency {
			continue
		}
		at := CompletionTime(c)
		key := [2]int{at.Year(), int(at.Month())}
		b, ok := byMonth[key]
		if !ok {
			b = &Bucket{Year: at.Year(), Month: at.Month()}
			byMonth[key] = b
		}
		earned := WriterEarnings(c.EstimatedCost()).Amount
		b.Earnings += earned
		if !c.WriterPaidOut {
			b.Pending += earned
		}
		b.Chapters++
		b.Words += int64(c.WordCount)
	}

	buckets := make([]Bucket, 0, len(byMonth))
	for _, b := range byMonth {
		buckets = append(buckets, *b)
	}
	return Build(writerID, currency, buckets)
}

// Build folds month buckets into a Summary. Buckets sharing a month are
// merged and the series is sorted oldest first.
func Build(writerID, currency string, buckets []Bucket) Summary {
	merged := make(map[[2]int]Bucket, len(buckets))
	for _, b := range buckets {
		key := [2]int{b.Year, int(b.Month)}
		m := merged[key]
		m.Year, m.Month = b.Year, b.Month
		m.Earnings += b.Earnings
		m.Pending += b.Pending
		m.Chapters += b.Chapters
		m.Words += b.Words
		merged[key] = m
	}

	s := Summary{
		WriterID:        writerID,
		TotalEarnings:   types.Zero(currency),
		AverageEarnings: types.Zero(currency),
		PendingPayout:   types.Zero(currency),
		Monthly:         make([]MonthlyEarnings, 0, len(merged)),
	}

	var words int64
	for _, b := range merged {
		s.TotalEarnings.Amount += b.Earnings
		s.PendingPayout.Amount += b.Pending
		s.ChapterCount += b.Chapters
		words += b.Words
		s.Monthly = append(s.Monthly, MonthlyEarnings{
			Year:         b.Year,
			Month:        b.Month,
			Earnings:     types.Money{Amount: b.Earnings, Currency: s.TotalEarnings.Currency},
			ChapterCount: b.Chapters,
			Words:        b.Words,
		})
	}

	sort.Slice(s.Monthly, func(i, j int) bool {
		a, b := s.Monthly[i], s.Monthly[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	if s.ChapterCount > 0 {
		n := int64(s.ChapterCount)
		s.AverageEarnings.Amount = roundDiv(s.TotalEarnings.Amount, n)
		s.AverageWords = roundDiv(words, n)
	}
	return s
}

// CheckPayout validates a payout request against the pending balance. It
// does not record anything.
func CheckPayout(s Summary, amount types.Money) error {
	if !amount.IsPositive() {
		return ErrInvalidPayoutAmount
	}
	if amount.Currency != s.PendingPayout.Currency {
		return fmt.Errorf("earnings: payout currency %q does not match %q", amount.Currency, s.PendingPayout.Currency)
	}
	if amount.GreaterThan(s.PendingPayout) {
		return fmt.Errorf("%w: requested %s, pending %s", ErrInsufficientEarnings, amount, s.PendingPayout)
	}
	return nil
}

func roundDiv(total, n int64) int64 {
	return (total + n/2) / n
}
