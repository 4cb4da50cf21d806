// Package postgres provides the pgx-backed [store.Store] implementation.
//
// All entities share a single [pgxpool.Pool]. [Migrate] is idempotent and
// runs automatically from [NewStore].
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddl = `
CREATE TABLE IF NOT EXISTS sermons (
    id                   TEXT        PRIMARY KEY,
    title                TEXT        NOT NULL DEFAULT '',
    speaker              TEXT        NOT NULL DEFAULT '',
    recorded_at          TIMESTAMPTZ NOT NULL,
    duration_ns          BIGINT      NOT NULL DEFAULT 0,
    audio_url            TEXT        NOT NULL DEFAULT '',
    content_hash         TEXT        NOT NULL DEFAULT '',
    transcription_status TEXT        NOT NULL DEFAULT 'pending',
    transcription_error  TEXT        NOT NULL DEFAULT '',
    study_guide_status   TEXT        NOT NULL DEFAULT 'pending',
    study_guide_error    TEXT        NOT NULL DEFAULT '',
    needs_sync           BOOLEAN     NOT NULL DEFAULT false,
    updated_at           TIMESTAMPTZ NOT NULL,
    deleted_at           TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sermons_needs_sync
    ON sermons (needs_sync) WHERE needs_sync;

CREATE TABLE IF NOT EXISTS transcripts (
    sermon_id TEXT  PRIMARY KEY REFERENCES sermons (id),
    text      TEXT  NOT NULL,
    words     JSONB NOT NULL,
    overlays  JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS study_guides (
    sermon_id TEXT  PRIMARY KEY REFERENCES sermons (id),
    payload   JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS engagements (
    fingerprint TEXT        PRIMARY KEY,
    user_id     TEXT        NOT NULL,
    sermon_id   TEXT        NOT NULL,
    kind        TEXT        NOT NULL,
    content     TEXT        NOT NULL DEFAULT '',
    position_ns BIGINT      NOT NULL DEFAULT 0,
    needs_sync  BOOLEAN     NOT NULL DEFAULT false,
    updated_at  TIMESTAMPTZ NOT NULL,
    deleted_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_engagements_sermon_id
    ON engagements (sermon_id);
`

// Migrate creates all tables and indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres store: migrate: %w", err)
	}
	return nil
}
