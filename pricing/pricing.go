// Package pricing turns a chapter's size, academic level, type of work and
// urgency into a deterministic price quote.
//
// The quote is persisted on the chapter as a Snapshot. Recomputing a quote
// from the same inputs always yields an equal Snapshot.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/thesisdesk/thesisdesk/types"
)

// WordsPerPage is the page size used to derive page counts.
const WordsPerPage = 250

// MaxTargetWordCount caps a single chapter at 4000 pages.
const MaxTargetWordCount = 1_000_000

// DefaultPricePerPage is KSh 400.00 per page.
var DefaultPricePerPage = types.KES(40000)

var (
	// ErrInvalidTarget is returned for a non-positive target word count.
	ErrInvalidTarget = errors.New("pricing: target word count must be positive")
	// ErrTargetTooLarge is returned when the target exceeds MaxTargetWordCount.
	ErrTargetTooLarge = fmt.Errorf("pricing: target word count exceeds %d", MaxTargetWordCount)
	// ErrPriceOverflow is returned when a quote does not fit in a Money amount.
	ErrPriceOverflow = errors.New("pricing: price out of range")
)

// Level is the academic level of the work.
type Level string

const (
	LevelMasters Level = "masters"
	LevelPhD     Level = "phd"
)

// WorkType is the kind of work ordered for a chapter.
type WorkType string

const (
	WorkCoursework WorkType = "coursework"
	WorkRevision   WorkType = "revision"
	WorkStatistics WorkType = "statistics"
)

// Urgency is the delivery speed requested.
type Urgency string

const (
	UrgencyNormal     Urgency = "normal"
	UrgencyUrgent     Urgency = "urgent"
	UrgencyVeryUrgent Urgency = "very_urgent"
)

var (
	one = decimal.NewFromInt(1)

	urgencyMultipliers = map[Urgency]decimal.Decimal{
		UrgencyNormal:     one,
		UrgencyUrgent:     decimal.RequireFromString("1.5"),
		UrgencyVeryUrgent: decimal.NewFromInt(2),
	}
	levelMultipliers = map[Level]decimal.Decimal{
		LevelMasters: one,
		LevelPhD:     decimal.RequireFromString("1.3"),
	}
	workTypeMultipliers = map[WorkType]decimal.Decimal{
		WorkCoursework: one,
		WorkRevision:   decimal.RequireFromString("0.8"),
		WorkStatistics: decimal.RequireFromString("1.4"),
	}
)

// UrgencyMultiplier returns the factor for u, or 1 for unknown values.
func UrgencyMultiplier(u Urgency) decimal.Decimal { return lookup(urgencyMultipliers, u) }

// LevelMultiplier returns the factor for l, or 1 for unknown values.
func LevelMultiplier(l Level) decimal.Decimal { return lookup(levelMultipliers, l) }

// WorkTypeMultiplier returns the factor for w, or 1 for unknown values.
func WorkTypeMultiplier(w WorkType) decimal.Decimal { return lookup(workTypeMultipliers, w) }

func lookup[K comparable](table map[K]decimal.Decimal, k K) decimal.Decimal {
	if v, ok := table[k]; ok {
		return v
	}
	return one
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := levelMultipliers[l]
	return ok
}

// Valid reports whether w is a known work type.
func (w WorkType) Valid() bool {
	_, ok := workTypeMultipliers[w]
	return ok
}

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool {
	_, ok := urgencyMultipliers[u]
	return ok
}

// Pages returns ceil(targetWordCount / WordsPerPage), or 0 for non-positive input.
func Pages(targetWordCount int) int64 {
	if targetWordCount <= 0 {
		return 0
	}
	return int64((targetWordCount-1)/WordsPerPage + 1)
}

// Request holds the chapter attributes that drive a quote.
type Request struct {
	TargetWordCount int      `json:"target_word_count"`
	Level           Level    `json:"level"`
	WorkType        WorkType `json:"work_type"`
	Urgency         Urgency  `json:"urgency"`
}

// Validate rejects a target outside (0, MaxTargetWordCount] and, when strict
// is set, unknown enum values. The calculator itself tolerates unknown enums.
func (r Request) Validate(strict bool) error {
	if r.TargetWordCount <= 0 {
		return ErrInvalidTarget
	}
	if r.TargetWordCount > MaxTargetWordCount {
		return ErrTargetTooLarge
	}
	if !strict {
		return nil
	}
	if !r.Level.Valid() {
		return fmt.Errorf("pricing: unknown level %q", r.Level)
	}
	if !r.WorkType.Valid() {
		return fmt.Errorf("pricing: unknown work type %q", r.WorkType)
	}
	if !r.Urgency.Valid() {
		return fmt.Errorf("pricing: unknown urgency %q", r.Urgency)
	}
	return nil
}

// Multipliers is the factor stack applied to the base price.
type Multipliers struct {
	Urgency  decimal.Decimal `json:"urgency"`
	Level    decimal.Decimal `json:"level"`
	WorkType decimal.Decimal `json:"work_type"`
	Combined decimal.Decimal `json:"combined"`
}

// Equal compares factors numerically.
func (m Multipliers) Equal(o Multipliers) bool {
	return m.Urgency.Equal(o.Urgency) &&
		m.Level.Equal(o.Level) &&
		m.WorkType.Equal(o.WorkType) &&
		m.Combined.Equal(o.Combined)
}

// Snapshot is the persisted output of a quote.
type Snapshot struct {
	PricePerPage types.Money `json:"price_per_page"`
	Pages        int64       `json:"pages"`
	BasePrice    types.Money `json:"base_price"`
	Multipliers  Multipliers `json:"multipliers"`
	TotalPrice   types.Money `json:"total_price"`
}

// Equal reports whether two snapshots are identical.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.PricePerPage.Equal(o.PricePerPage) &&
		s.Pages == o.Pages &&
		s.BasePrice.Equal(o.BasePrice) &&
		s.Multipliers.Equal(o.Multipliers) &&
		s.TotalPrice.Equal(o.TotalPrice)
}

// Calculator quotes chapters at a fixed per-page rate.
type Calculator struct {
	PricePerPage types.Money
}

// NewCalculator returns a Calculator for the given rate. A zero currency
// falls back to DefaultPricePerPage.
func NewCalculator(pricePerPage types.Money) Calculator {
	if pricePerPage.Currency == "" {
		pricePerPage = DefaultPricePerPage
	}
	return Calculator{PricePerPage: pricePerPage}
}

// Currency returns the currency quotes are denominated in.
func (c Calculator) Currency() string { return c.PricePerPage.Currency }

// Quote prices r. Only the target word count is validated.
func (c Calculator) Quote(r Request) (Snapshot, error) {
	if err := r.Validate(false); err != nil {
		return Snapshot{}, err
	}

	pages := Pages(r.TargetWordCount)
	if c.PricePerPage.Amount < 0 || (pages > 0 && c.PricePerPage.Amount > math.MaxInt64/pages) {
		return Snapshot{}, ErrPriceOverflow
	}
	base := c.PricePerPage.Multiply(pages)

	m := Multipliers{
		Urgency:  UrgencyMultiplier(r.Urgency),
		Level:    LevelMultiplier(r.Level),
		WorkType: WorkTypeMultiplier(r.WorkType),
	}
	m.Combined = m.Urgency.Mul(m.Level).Mul(m.WorkType)
	if decimal.NewFromInt(base.Amount).Mul(m.Combined).Round(0).GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return Snapshot{}, ErrPriceOverflow
	}

	return Snapshot{
		PricePerPage: c.PricePerPage,
		Pages:        pages,
		BasePrice:    base,
		Multipliers:  m,
		TotalPrice:   base.MulRound(m.Combined),
	}, nil
}
