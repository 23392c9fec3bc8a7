// Package mongo implements store.Store on MongoDB through the Grove ORM.
// Compound payment writes run in multi-document transactions, which need a
// replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/thesisdesk/thesisdesk"
	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/earnings"
	"github.com/thesisdesk/thesisdesk/id"
	"github.com/thesisdesk/thesisdesk/payment"
	deskstore "github.com/thesisdesk/thesisdesk/store"
)

// Collection name constants.
const (
	colChapters = "thesisdesk_chapters"
	colPayments = "thesisdesk_payments"
)

// compile-time interface check
var _ deskstore.Store = (*Store)(nil)

// querier is satisfied by both *mongodriver.MongoDB and *mongodriver.MongoTx,
// so the same write helpers run inside and outside a transaction.
type querier interface {
	NewFind(model ...any) *mongodriver.FindQuery
	NewInsert(model any) *mongodriver.InsertQuery
	NewUpdate(model any) *mongodriver.UpdateQuery
	NewDelete(model any) *mongodriver.DeleteQuery
}

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Connect dials uri, opens a Grove handle on dbName and returns a Store.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	mdb := mongodriver.New()
	if err := mdb.Open(ctx, uri, mongodriver.WithDatabase(dbName)); err != nil {
		return nil, fmt.Errorf("%w: %w", thesisdesk.ErrStoreNotReady, err)
	}
	db, err := grove.Open(mdb)
	if err != nil {
		_ = mdb.Close() //nolint:errcheck // open error takes precedence
		return nil, fmt.Errorf("thesisdesk/mongo: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all thesisdesk collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: %s indexes: %w", thesisdesk.ErrMigrationFailed, col, err)
		}
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
	_, err := s.mdb.NewInsert(toChapterModel(c)).Exec(ctx)
	if mongo.IsDuplicateKeyError(err) {
		return thesisdesk.ErrDuplicateChapterNumber
	}
	if err != nil {
		return fmt.Errorf("thesisdesk/mongo: create chapter: %w", err)
	}
	return nil
}

func (s *Store) GetChapter(ctx context.Context, chapterID id.ChapterID) (*chapter.Chapter, error) {
	var m chapterModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": chapterID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, thesisdesk.ErrChapterNotFound
		}
		return nil, fmt.Errorf("thesisdesk/mongo: get chapter: %w", err)
	}
	return fromChapterModel(&m)
}

func (s *Store) ListChapters(ctx context.Context, ownerID string, opts chapter.ListOpts) ([]*chapter.Chapter, error) {
	var models []chapterModel

	filter := bson.M{"owner_id": ownerID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.WriterID != "" {
		filter["writer_id"] = opts.WriterID
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "chapter_number", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("thesisdesk/mongo: list chapters: %w", err)
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
	return replaceChapter(ctx, s.mdb, c, prevUpdatedAt)
}

func (s *Store) DeleteChapter(ctx context.Context, c *chapter.Chapter) error {
	res, err := s.mdb.NewDelete((*chapterModel)(nil)).
		Filter(bson.M{
			"_id":        c.ID.String(),
			"is_paid":    false,
			"updated_at": ms(c.UpdatedAt),
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("thesisdesk/mongo: delete chapter: %w", err)
	}
	if res.DeletedCount() == 0 {
		return missingOrConflict(ctx, s.mdb, (*chapterModel)(nil), c.ID.String(), thesisdesk.ErrChapterNotFound)
	}
	return nil
}

// replaceChapter writes c only if the stored document still carries
// prevUpdatedAt.
func replaceChapter(ctx context.Context, q querier, c *chapter.Chapter, prevUpdatedAt time.Time) error {
	res, err := q.NewUpdate(toChapterModel(c)).
		Filter(bson.M{"_id": c.ID.String(), "updated_at": ms(prevUpdatedAt)}).
		Exec(ctx)
	if mongo.IsDuplicateKeyError(err) {
		return thesisdesk.ErrDuplicateChapterNumber
	}
	if err != nil {
		return fmt.Errorf("thesisdesk/mongo: update chapter: %w", err)
	}
	if res.MatchedCount() == 0 {
		return missingOrConflict(ctx, q, (*chapterModel)(nil), c.ID.String(), thesisdesk.ErrChapterNotFound)
	}
	return nil
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	return s.inTransaction(ctx, func(tx querier) error {
		if p.HasChapter() {
			var m chapterModel
			err := tx.NewFind(&m).
				Filter(bson.M{"_id": p.ChapterID.String()}).
				Scan(ctx)
			if isNoDocuments(err) {
				return thesisdesk.ErrChapterNotFound
			}
			if err != nil {
				return fmt.Errorf("thesisdesk/mongo: create payment: load chapter: %w", err)
			}
			if m.IsPaid {
				return thesisdesk.ErrChapterAlreadyPaid
			}
		}

		_, err := tx.NewInsert(toPaymentModel(p)).Exec(ctx)
		if mongo.IsDuplicateKeyError(err) {
			return thesisdesk.ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("thesisdesk/mongo: create payment: %w", err)
		}
		return nil
	})
}

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	var m paymentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": paymentID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, thesisdesk.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("thesisdesk/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, ownerID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel

	filter := bson.M{"owner_id": ownerID}
	if !opts.ChapterID.IsNil() {
		filter["chapter_id"] = opts.ChapterID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("thesisdesk/mongo: list payments: %w", err)
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
			Filter(bson.M{"_id": c.Payment.ID.String(), "status": string(c.From)}).
			Exec(ctx)
		if mongo.IsDuplicateKeyError(err) {
			return thesisdesk.ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("thesisdesk/mongo: transition payment: %w", err)
		}
		if res.MatchedCount() == 0 {
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
			Filter(bson.M{"_id": c.Payment.ID.String(), "status": string(c.From)}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("thesisdesk/mongo: delete payment: %w", err)
		}
		if res.DeletedCount() == 0 {
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
	ID struct {
		Year  int `bson:"year"`
		Month int `bson:"month"`
	} `bson:"_id"`
	Earnings int64 `bson:"earnings"`
	Pending  int64 `bson:"pending"`
	Chapters int   `bson:"chapters"`
	Words    int64 `bson:"words"`
}

// EarningsSummary groups the writer's completed chapters by month inside
// the database and folds the buckets with earnings.Build.
func (s *Store) EarningsSummary(ctx context.Context, writerID, currency string, r earnings.Range) (earnings.Summary, error) {
	var rows []earningsRow
	if err := s.earningsQuery(writerID, currency, r).Scan(ctx, &rows); err != nil {
		return earnings.Summary{}, fmt.Errorf("thesisdesk/mongo: earnings: %w", err)
	}

	buckets := make([]earnings.Bucket, len(rows))
	for i, row := range rows {
		buckets[i] = earnings.Bucket{
			Year:     row.ID.Year,
			Month:    time.Month(row.ID.Month),
			Earnings: row.Earnings,
			Pending:  row.Pending,
			Chapters: row.Chapters,
			Words:    row.Words,
		}
	}
	return earnings.Build(writerID, currency, buckets), nil
}

func (s *Store) earningsQuery(writerID, currency string, r earnings.Range) *mongodriver.AggregateQuery {
	return earningsPipeline(s.mdb.NewAggregate(colChapters), writerID, currency, r)
}

// earningsPipeline appends the monthly earnings stages to q.
func earningsPipeline(q *mongodriver.AggregateQuery, writerID, currency string, r earnings.Range) *mongodriver.AggregateQuery {
	doneAt := bson.M{}
	if !r.From.IsZero() {
		doneAt["$gte"] = r.From.UTC()
	}
	if !r.To.IsZero() {
		doneAt["$lt"] = r.To.UTC()
	}

	earned := bson.M{"$toLong": bson.M{"$floor": bson.M{"$divide": bson.A{
		bson.M{"$add": bson.A{
			bson.M{"$multiply": bson.A{"$estimated_cost_cents", earnings.WriterSharePercent}},
			50,
		}},
		100,
	}}}}

	q = q.Match(bson.M{
		"writer_id":        writerID,
		"status":           string(chapter.StatusCompleted),
		"pricing.currency": currency,
	}).Stage(bson.M{"$addFields": bson.M{
		"done_at": bson.M{"$ifNull": bson.A{"$completed_at", "$updated_at"}},
	}})
	if len(doneAt) > 0 {
		q = q.Match(bson.M{"done_at": doneAt})
	}

	return q.
		Project(bson.M{
			"year":     bson.M{"$year": "$done_at"},
			"month":    bson.M{"$month": "$done_at"},
			"words":    "$word_count",
			"earned":   earned,
			"paid_out": "$writer_paid_out",
		}).
		Group(bson.M{
			"_id":      bson.M{"year": "$year", "month": "$month"},
			"earnings": bson.M{"$sum": "$earned"},
			"pending":  bson.M{"$sum": bson.M{"$cond": bson.A{"$paid_out", 0, "$earned"}}},
			"chapters": bson.M{"$sum": 1},
			"words":    bson.M{"$sum": "$words"},
		}).
		Sort(bson.D{{Key: "_id.year", Value: 1}, {Key: "_id.month", Value: 1}})
}

// ==================== Helpers ====================

// inTransaction runs fn inside a Grove transaction. Errors returned by fn
// roll back and pass through, except transient transaction failures, which
// surface as thesisdesk.ErrConflict so callers can retry.
func (s *Store) inTransaction(ctx context.Context, fn func(tx querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("thesisdesk/mongo: begin transaction: %w", err)
	}
	mtx, ok := tx.Raw().(*mongodriver.MongoTx)
	if !ok {
		_ = tx.Rollback() //nolint:errcheck // unusable transaction
		return fmt.Errorf("thesisdesk/mongo: unexpected transaction %T", tx.Raw())
	}

	if err := fn(mtx); err != nil {
		_ = tx.Rollback() //nolint:errcheck // fn error takes precedence
		return txError(err)
	}
	if err := tx.Commit(); err != nil {
		return txError(fmt.Errorf("thesisdesk/mongo: commit: %w", err))
	}
	return nil
}

// txError marks errors the server labels as transient as conflicts.
func txError(err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%w: %w", thesisdesk.ErrConflict, err)
	}
	return err
}

// missingOrConflict tells a vanished document apart from one whose guard
// field moved.
func missingOrConflict(ctx context.Context, q querier, model any, docID string, notFound error) error {
	n, err := q.NewFind(model).Filter(bson.M{"_id": docID}).Count(ctx)
	if err != nil {
		return fmt.Errorf("thesisdesk/mongo: check %s: %w", docID, err)
	}
	if n == 0 {
		return notFound
	}
	return thesisdesk.ErrConflict
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all thesisdesk collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	// Grove writes every column, so pending payments carry an empty
	// transaction_id that must stay outside the unique index.
	txnUnique := options.Index().SetUnique(true).
		SetPartialFilterExpression(bson.M{"transaction_id": bson.M{"$gt": ""}})

	return map[string][]mongo.IndexModel{
		colChapters: {
			{
				Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "chapter_number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "writer_id", Value: 1}, {Key: "status", Value: 1}, {Key: "completed_at", Value: 1}}},
			{Keys: bson.D{{Key: "payment_id", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "chapter_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "transaction_id", Value: 1}}, Options: txnUnique},
		},
	}
}
