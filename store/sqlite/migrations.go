package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the thesisdesk store (SQLite).
var Migrations = migrate.NewGroup("thesisdesk")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_thesisdesk_chapters",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS thesisdesk_chapters (
    id                   TEXT PRIMARY KEY,
    owner_id             TEXT NOT NULL DEFAULT '',
    writer_id            TEXT NOT NULL DEFAULT '',
    title                TEXT NOT NULL DEFAULT '',
    content              TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL DEFAULT 'draft',
    chapter_number       INTEGER NOT NULL,
    word_count           INTEGER NOT NULL DEFAULT 0,
    target_word_count    INTEGER NOT NULL DEFAULT 0,
    level                TEXT NOT NULL DEFAULT '',
    work_type            TEXT NOT NULL DEFAULT '',
    urgency              TEXT NOT NULL DEFAULT '',
    currency             TEXT NOT NULL DEFAULT '',
    price_per_page_cents INTEGER NOT NULL DEFAULT 0,
    pages                INTEGER NOT NULL DEFAULT 0,
    base_price_cents     INTEGER NOT NULL DEFAULT 0,
    urgency_factor       TEXT NOT NULL DEFAULT '',
    level_factor         TEXT NOT NULL DEFAULT '',
    work_type_factor     TEXT NOT NULL DEFAULT '',
    combined_factor      TEXT NOT NULL DEFAULT '',
    estimated_cost_cents INTEGER NOT NULL DEFAULT 0,
    is_paid              INTEGER NOT NULL DEFAULT 0,
    payment_id           TEXT NOT NULL DEFAULT '',
    files                TEXT NOT NULL DEFAULT '[]',
    feedback             TEXT NOT NULL DEFAULT '[]',
    revisions            TEXT NOT NULL DEFAULT '[]',
    completed_at         INTEGER,
    writer_paid_out      INTEGER NOT NULL DEFAULT 0,
    created_at           INTEGER NOT NULL,
    updated_at           INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_thesisdesk_chapters_owner_number ON thesisdesk_chapters (owner_id, chapter_number);
CREATE INDEX IF NOT EXISTS idx_thesisdesk_chapters_writer ON thesisdesk_chapters (writer_id, status, completed_at);
CREATE INDEX IF NOT EXISTS idx_thesisdesk_chapters_payment ON thesisdesk_chapters (payment_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS thesisdesk_chapters`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_thesisdesk_payments",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS thesisdesk_payments (
    id             TEXT PRIMARY KEY,
    owner_id       TEXT NOT NULL DEFAULT '',
    chapter_id     TEXT NOT NULL DEFAULT '',
    amount_cents   INTEGER NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'pending',
    payment_method TEXT NOT NULL DEFAULT '',
    transaction_id TEXT NOT NULL DEFAULT '',
    failure_reason TEXT NOT NULL DEFAULT '',
    refund_reason  TEXT NOT NULL DEFAULT '',
    completed_at   INTEGER,
    failed_at      INTEGER,
    refunded_at    INTEGER,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_thesisdesk_payments_owner ON thesisdesk_payments (owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_thesisdesk_payments_chapter ON thesisdesk_payments (chapter_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_thesisdesk_payments_txn ON thesisdesk_payments (transaction_id) WHERE transaction_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS thesisdesk_payments`)
				return err
			},
		},
	)
}
