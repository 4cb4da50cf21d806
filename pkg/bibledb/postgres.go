package bibledb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Lookup = (*PostgresLookup)(nil)

const ddlBibleDB = `
CREATE TABLE IF NOT EXISTS cross_references (
    from_id TEXT NOT NULL,
    to_id   TEXT NOT NULL,
    votes   INT  NOT NULL DEFAULT 0,
    PRIMARY KEY (from_id, to_id)
);

CREATE INDEX IF NOT EXISTS idx_cross_references_to_id
    ON cross_references (to_id);

CREATE TABLE IF NOT EXISTS insights (
    id       BIGSERIAL PRIMARY KEY,
    verse_id TEXT NOT NULL,
    title    TEXT NOT NULL,
    body     TEXT NOT NULL,
    source   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_insights_verse_id
    ON insights (verse_id);
`

// PostgresLookup is the pgx-backed [Lookup] over the imported cross-reference
// and insight tables.
type PostgresLookup struct {
	pool *pgxpool.Pool
}

// NewPostgresLookup connects to the database at dsn and ensures the lookup
// tables exist.
func NewPostgresLookup(ctx context.Context, dsn string) (*PostgresLookup, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("bibledb: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bibledb: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlBibleDB); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bibledb: migrate: %w", err)
	}
	return &PostgresLookup{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (l *PostgresLookup) Close() {
	l.pool.Close()
}

// Ping probes database connectivity.
func (l *PostgresLookup) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// OutgoingIDs implements [Lookup].
func (l *PostgresLookup) OutgoingIDs(ctx context.Context, fromID string) ([]string, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT to_id FROM cross_references WHERE from_id = $1 ORDER BY votes DESC, to_id`,
		fromID)
	if err != nil {
		return nil, fmt.Errorf("bibledb: outgoing %s: %w", fromID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("bibledb: outgoing %s: %w", fromID, err)
	}
	return ids, nil
}

// IncomingIDs implements [Lookup].
func (l *PostgresLookup) IncomingIDs(ctx context.Context, toID string) ([]string, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT from_id FROM cross_references WHERE to_id = $1 ORDER BY votes DESC, from_id`,
		toID)
	if err != nil {
		return nil, fmt.Errorf("bibledb: incoming %s: %w", toID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("bibledb: incoming %s: %w", toID, err)
	}
	return ids, nil
}

// Insights implements [Lookup].
func (l *PostgresLookup) Insights(ctx context.Context, verseID string) ([]Insight, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT verse_id, title, body, source FROM insights WHERE verse_id = $1 ORDER BY id`,
		verseID)
	if err != nil {
		return nil, fmt.Errorf("bibledb: insights %s: %w", verseID, err)
	}
	insights, err := pgx.CollectRows(rows, pgx.RowToStructByName[Insight])
	if err != nil {
		return nil, fmt.Errorf("bibledb: insights %s: %w", verseID, err)
	}
	return insights, nil
}

// ImportCrossReferences bulk-upserts cross-reference edges, used by the
// one-time dataset import. Existing edges get the new vote count.
func (l *PostgresLookup) ImportCrossReferences(ctx context.Context, refs []CrossReference) error {
	batch := &pgx.Batch{}
	for _, r := range refs {
		batch.Queue(
			`INSERT INTO cross_references (from_id, to_id, votes) VALUES ($1, $2, $3)
			 ON CONFLICT (from_id, to_id) DO UPDATE SET votes = EXCLUDED.votes`,
			r.FromID, r.ToID, r.Votes)
	}
	if err := l.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("bibledb: import cross references: %w", err)
	}
	return nil
}
