// Package sqlite implements store.Store on SQLite through the Grove ORM.
// The pool holds a single connection, so transactions serialize every
// writer and a transaction never waits on another handle.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
	"github.com/xraph/grove/migrate"
	sqlitelib "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/thesisdesk/thesisdesk"
	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/earnings"
	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/payment"
	deskstore "github.com/thesisdesk/thesisdesk/store"
)

// compile-time interface check
var _ deskstore.Store = (*Store)(nil)

// querier is satisfied by both *sqlitedriver.SqliteDB and
// *sqlitedriver.SqliteTx.
type querier interface {
	NewSelect(model ...any) *sqlitedriver.SelectQuery
	NewInsert(model any) *sqlitedriver.InsertQuery
	NewUpdate(model any) *sqlitedriver.UpdateQuery
	NewDelete(model any) *sqlitedriver.DeleteQuery
}

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Open opens the database file at path and returns a Store.
func Open(ctx context.Context, path string) (*Store, error) {
	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, path, driver.WithPoolSize(1)); err != nil {
		return nil, fmt.Errorf("%w: %w", thesisdesk.ErrStoreNotReady, err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		_ = sdb.Close() //nolint:errcheck // open error takes precedence
		return nil, fmt.Errorf("thesisdesk/sqlite: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("%w: create migration executor: %w", thesisdesk.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", thesisdesk.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", thesisdesk.ErrStoreNotReady, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Chapter Store ====================

func (s *Store) CreateChapter(ctx context.Context, c *chapter.Chapter) error {
	m, err := toChapterModel(c)
	if err != nil {
		return fmt.Errorf("thesisdesk/sqlite: create chapter: %w", err)
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	if isConstraint(err) {
		return thesisdesk.ErrDuplicateChapterNumber
	}
	if err != nil {
		return fmt.Errorf("thesisdesk/sqlite: create chapter: %w", err)
	}
	return nil
}

func (s *Store) GetChapter(ctx context.Context, chapterID id.ChapterID) (*chapter.Chapter, error) {
	m := new(chapterModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", chapterID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, thesisdesk.ErrChapterNotFound
		}
		return nil, fmt.Errorf("thesisdesk/sqlite: get chapter: %w", err)
	}
	return fromChapterModel(m)
}

func (s *Store) ListChapters(ctx context.Context, ownerID string, opts chapter.ListOpts) ([]*chapter.Chapter, error) {
	var models []chapterModel
	q := s.sdb.NewSelect(&models).Where("owner_id = ?", ownerID)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.WriterID != "" {
		q = q.Where("writer_id = ?", opts.WriterID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT.
		if opts.Limit <= 0 {
			q = q.Limit(math.MaxInt)
		}
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("chapter_number ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("thesisdesk/sqlite: list chapters: %w", err)
	}

	result := make([]*chapter.Chapter, len(models))
	for i := range models {
		c, err := fromChapterModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) UpdateChapter(ctx context.Context, c *chapter.Chapter, prevUpdatedAt time.Time) error {
	return replaceChapter(ctx, s.sdb, c, prevUpdatedAt)
}

func (s *Store) DeleteChapter(ctx context.Context, c *chapter.Chapter) error {
	res, err := s.sdb.NewDelete((*chapterModel)(nil)).
		Where("id = ?", c.ID.String()).
		Where("is_paid = ?", false).
		Where("updated_at = ?", toMillis(c.UpdatedAt)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("thesisdesk/sqlite: delete chapter: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("thesisdesk/sqlite: delete chapter: %w", err)
	}
	if rows == 0 {
		return missingOrConflict(ctx, s.sdb, (*chapterModel)(nil), c.ID.String(), thesisdesk.ErrChapterNotFound)
	}
	return nil
}

// replaceChapter writes c only if the stored row still carries
// prevUpdatedAt.
func replaceChapter(ctx context.Context, q querier, c *chapter.Chapter, prevUpdatedAt time.Time) error {
	m, err := toChapterModel(c)
	if err != nil {
		return fmt.Errorf("thesisdesk/sqlite: update chapter: %w", err)
	}
	res, err := q.NewUpdate(m).
		Where("id = ?", m.ID).
		Where("updated_at = ?", toMillis(prevUpdatedAt)).
		Exec(ctx)
	if isConstraint(err) {
		return thesisdesk.ErrDuplicateChapterNumber
	}
	if err != nil {
		return fmt.Errorf("thesisdesk/sqlite: update chapter: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("thesisdesk/sqlite: update chapter: %w", err)
	}
	if rows == 0 {
		return missingOrConflict(ctx, q, (*chapterModel)(nil), m.ID, thesisdesk.ErrChapterNotFound)
	}
	return nil
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	return s.inTransaction(ctx, func(tx querier) error {
		if p.HasChapter() {
			m := new(chapterModel)
			err := tx.NewSelect(m).
				Where("id = ?", p.ChapterID.String()).
				Scan(ctx)
			if isNoRows(err) {
				return thesisdesk.ErrChapterNotFound
			}
			if err != nil {
				return fmt.Errorf("thesisdesk/sqlite: create payment: load chapter: %w", err)
			}
			if m.IsPaid {
				return thesisdesk.ErrChapterAlreadyPaid
			}
		}

		_, err := tx.NewInsert(toPaymentModel(p)).Exec(ctx)
		if isConstraint(err) {
			return thesisdesk.ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("thesisdesk/sqlite: create payment: %w", err)
		}
		return nil
	})
}

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	m := new(paymentModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", paymentID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, thesisdesk.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("thesisdesk/sqlite: get payment: %w", err)
	}
	return fromPaymentModel(m)
}

func (s *Store) ListPayments(ctx context.Context, ownerID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel
	q := s.sdb.NewSelect(&models).Where("owner_id = ?", ownerID)

	if !opts.ChapterID.IsNil() {
		q = q.Where("chapter_id = ?", opts.ChapterID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			q = q.Limit(math.MaxInt)
		}
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("thesisdesk/sqlite: list payments: %w", err)
	}

	result := make([]*payment.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) ApplyPaymentTransition(ctx context.Context, c payment.Change) error {
	return s.inTransaction(ctx, func(tx querier) error {
		res, err := tx.NewUpdate(toPaymentModel(c.Payment)).
			Where("id = ?", c.Payment.ID.String()).
			Where("status = ?", string(c.From)).
			Exec(ctx)
		if isConstraint(err) {
			return thesisdesk.ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("thesisdesk/sqlite: transition payment: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("thesisdesk/sqlite: transition payment: %w", err)
		}
		if rows == 0 {
			return missingOrConflict(ctx, tx, (*paymentModel)(nil), c.Payment.ID.String(), thesisdesk.ErrPaymentNotFound)
		}

		if c.Chapter != nil {
			return replaceChapter(ctx, tx, c.Chapter, c.ChapterUpdatedAt)
		}
		return nil
	})
}

func (s *Store) DeletePayment(ctx context.Context, c payment.Change) error {
	if !payment.CanDelete(payment.Payment{Status: c.From}) {
		return thesisdesk.ErrNotDeletable
	}

	return s.inTransaction(ctx, func(tx querier) error {
		res, err := tx.NewDelete((*paymentModel)(nil)).
			Where("id = ?", c.Payment.ID.String()).
			Where("status = ?", string(c.From)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("thesisdesk/sqlite: delete payment: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("thesisdesk/sqlite: delete payment: %w", err)
		}
		if rows == 0 {
			return missingOrConflict(ctx, tx, (*paymentModel)(nil), c.Payment.ID.String(), thesisdesk.ErrPaymentNotFound)
		}

		if c.Chapter != nil {
			return replaceChapter(ctx, tx, c.Chapter, c.ChapterUpdatedAt)
		}
		return nil
	})
}

// ==================== Earnings ====================

type earningsRow struct {
	Year     int   `grove:"year"`
	Month    int   `grove:"month"`
	Earnings int64 `grove:"earnings"`
	Pending  int64 `grove:"pending"`
	Chapters int   `grove:"chapters"`
	Words    int64 `grove:"words"`
}

// EarningsSummary groups the writer's completed chapters by month inside
// the database and folds the buckets with earnings.Build.
func (s *Store) EarningsSummary(ctx context.Context, writerID, currency string, r earnings.Range) (earnings.Summary, error) {
	query, args := earningsQuery(writerID, currency, r)

	var rows []earningsRow
	if err := s.sdb.NewRaw(query, args...).Scan(ctx, &rows); err != nil {
		return earnings.Summary{}, fmt.Errorf("thesisdesk/sqlite: earnings: %w", err)
	}

	buckets := make([]earnings.Bucket, len(rows))
	for i, row := range rows {
		buckets[i] = earnings.Bucket{
			Year:     row.Year,
			Month:    time.Month(row.Month),
			Earnings: row.Earnings,
			Pending:  row.Pending,
			Chapters: row.Chapters,
			Words:    row.Words,
		}
	}
	return earnings.Build(writerID, currency, buckets), nil
}

// earningsQuery builds the monthly GROUP BY. A chapter completes at
// completed_at, or at updated_at for rows written before it was tracked.
func earningsQuery(writerID, currency string, r earnings.Range) (string, []any) {
	args := []any{earnings.WriterSharePercent, writerID, string(chapter.StatusCompleted), currency}

	var bounds []string
	if !r.From.IsZero() {
		bounds = append(bounds, "done_ms >= ?")
		args = append(args, toMillis(r.From))
	}
	if !r.To.IsZero() {
		bounds = append(bounds, "done_ms < ?")
		args = append(args, toMillis(r.To))
	}
	where := ""
	if len(bounds) > 0 {
		where = "WHERE " + strings.Join(bounds, " AND ")
	}

	query := `
SELECT
    CAST(strftime('%Y', done_ms / 1000, 'unixepoch') AS INTEGER) AS year,
    CAST(strftime('%m', done_ms / 1000, 'unixepoch') AS INTEGER) AS month,
    SUM(earned) AS earnings,
    SUM(CASE WHEN writer_paid_out THEN 0 ELSE earned END) AS pending,
    COUNT(*) AS chapters,
    SUM(word_count) AS words
FROM (
    SELECT
        COALESCE(completed_at, updated_at) AS done_ms,
        (estimated_cost_cents * ? + 50) / 100 AS earned,
        writer_paid_out,
        word_count
    FROM thesisdesk_chapters
    WHERE writer_id = ? AND status = ? AND currency = ?
)
` + where + `
GROUP BY year, month
ORDER BY year, month`
	return query, args
}

// ==================== Helpers ====================

// inTransaction runs fn inside a SQLite transaction and rolls back when fn
// fails.
func (s *Store) inTransaction(ctx context.Context, fn func(tx querier) error) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("thesisdesk/sqlite: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback() //nolint:errcheck // fn error takes precedence
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("thesisdesk/sqlite: commit: %w", err)
	}
	return nil
}

// missingOrConflict tells a vanished row apart from one whose guard column
// moved.
func missingOrConflict(ctx context.Context, q querier, model any, rowID string, notFound error) error {
	n, err := q.NewSelect(model).Where("id = ?", rowID).Count(ctx)
	if err != nil {
		return fmt.Errorf("thesisdesk/sqlite: check %s: %w", rowID, err)
	}
	if n == 0 {
		return notFound
	}
	return thesisdesk.ErrConflict
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isConstraint reports a UNIQUE or PRIMARY KEY violation.
func isConstraint(err error) bool {
	var se *sqlitelib.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
