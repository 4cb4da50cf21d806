package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebmoss/berea/internal/sermon"
	"github.com/calebmoss/berea/internal/transcript"
	"github.com/calebmoss/berea/pkg/store"
	"github.com/calebmoss/berea/pkg/studyguide"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed persistence layer. All operations share one
// connection pool and are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks database connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const sermonColumns = `id, title, speaker, recorded_at, duration_ns, audio_url, content_hash,
	transcription_status, transcription_error, study_guide_status, study_guide_error,
	needs_sync, updated_at, deleted_at`

func scanSermon(row pgx.Row) (*sermon.Sermon, error) {
	var (
		s          sermon.Sermon
		durationNS int64
	)
	err := row.Scan(&s.ID, &s.Title, &s.Speaker, &s.RecordedAt, &durationNS, &s.AudioURL,
		&s.ContentHash, &s.TranscriptionStatus, &s.TranscriptionError,
		&s.StudyGuideStatus, &s.StudyGuideError, &s.NeedsSync, &s.UpdatedAt, &s.DeletedAt)
	if err != nil {
		return nil, err
	}
	s.Duration = time.Duration(durationNS)
	return &s, nil
}

// SaveSermon implements [store.Store].
func (s *Store) SaveSermon(ctx context.Context, sm *sermon.Sermon) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sermons (`+sermonColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			speaker = EXCLUDED.speaker,
			recorded_at = EXCLUDED.recorded_at,
			duration_ns = EXCLUDED.duration_ns,
			audio_url = EXCLUDED.audio_url,
			content_hash = EXCLUDED.content_hash,
			transcription_status = EXCLUDED.transcription_status,
			transcription_error = EXCLUDED.transcription_error,
			study_guide_status = EXCLUDED.study_guide_status,
			study_guide_error = EXCLUDED.study_guide_error,
			needs_sync = EXCLUDED.needs_sync,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at`,
		sm.ID, sm.Title, sm.Speaker, sm.RecordedAt, int64(sm.Duration), sm.AudioURL,
		sm.ContentHash, sm.TranscriptionStatus, sm.TranscriptionError,
		sm.StudyGuideStatus, sm.StudyGuideError, sm.NeedsSync, sm.UpdatedAt, sm.DeletedAt)
	if err != nil {
		return fmt.Errorf("postgres store: save sermon %s: %w", sm.ID, err)
	}
	return nil
}

// GetSermon implements [store.Store].
func (s *Store) GetSermon(ctx context.Context, id string) (*sermon.Sermon, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sermonColumns+` FROM sermons WHERE id = $1`, id)
	sm, err := scanSermon(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres store: sermon %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get sermon %s: %w", id, err)
	}
	return sm, nil
}

// ListSermons implements [store.Store].
func (s *Store) ListSermons(ctx context.Context) ([]sermon.Sermon, error) {
	return s.querySermons(ctx,
		`SELECT `+sermonColumns+` FROM sermons WHERE deleted_at IS NULL ORDER BY recorded_at DESC`)
}

// DirtySermons implements [store.Store].
func (s *Store) DirtySermons(ctx context.Context) ([]sermon.Sermon, error) {
	return s.querySermons(ctx,
		`SELECT `+sermonColumns+` FROM sermons WHERE needs_sync ORDER BY id`)
}

func (s *Store) querySermons(ctx context.Context, query string) ([]sermon.Sermon, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query sermons: %w", err)
	}
	defer rows.Close()

	var out []sermon.Sermon
	for rows.Next() {
		sm, err := scanSermon(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres store: scan sermon: %w", err)
		}
		out = append(out, *sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: query sermons: %w", err)
	}
	return out, nil
}

// MarkSermonSynced implements [store.Store].
func (s *Store) MarkSermonSynced(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sermons SET needs_sync = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres store: mark synced %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: sermon %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ApplyRemoteSermon implements [store.Store]. The comparison and write run in
// one transaction so concurrent local edits are not lost.
func (s *Store) ApplyRemoteSermon(ctx context.Context, remote *sermon.Sermon) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: apply remote sermon: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT updated_at, content_hash FROM sermons WHERE id = $1 FOR UPDATE`, remote.ID)
	var (
		localUpdated time.Time
		localHash    string
	)
	err = row.Scan(&localUpdated, &localHash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// No local copy: the remote wins by default.
	case err != nil:
		return fmt.Errorf("postgres store: apply remote sermon %s: %w", remote.ID, err)
	default:
		if !store.RemoteWins(localUpdated, remote.UpdatedAt, localHash, remote.ContentHash) {
			return nil
		}
	}

	applied := *remote
	applied.NeedsSync = false
	_, err = tx.Exec(ctx, `
		INSERT INTO sermons (`+sermonColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			speaker = EXCLUDED.speaker,
			recorded_at = EXCLUDED.recorded_at,
			duration_ns = EXCLUDED.duration_ns,
			audio_url = EXCLUDED.audio_url,
			content_hash = EXCLUDED.content_hash,
			transcription_status = EXCLUDED.transcription_status,
			transcription_error = EXCLUDED.transcription_error,
			study_guide_status = EXCLUDED.study_guide_status,
			study_guide_error = EXCLUDED.study_guide_error,
			needs_sync = EXCLUDED.needs_sync,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at`,
		applied.ID, applied.Title, applied.Speaker, applied.RecordedAt, int64(applied.Duration),
		applied.AudioURL, applied.ContentHash, applied.TranscriptionStatus,
		applied.TranscriptionError, applied.StudyGuideStatus, applied.StudyGuideError,
		applied.NeedsSync, applied.UpdatedAt, applied.DeletedAt)
	if err != nil {
		return fmt.Errorf("postgres store: apply remote sermon %s: %w", remote.ID, err)
	}
	return tx.Commit(ctx)
}

// SaveTranscript implements [store.Store].
func (s *Store) SaveTranscript(ctx context.Context, t *transcript.Transcript) error {
	words, err := json.Marshal(t.Words)
	if err != nil {
		return fmt.Errorf("postgres store: encode words: %w", err)
	}
	overlays, err := json.Marshal(t.Overlays)
	if err != nil {
		return fmt.Errorf("postgres store: encode overlays: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO transcripts (sermon_id, text, words, overlays)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sermon_id) DO UPDATE SET
			text = EXCLUDED.text,
			words = EXCLUDED.words,
			overlays = EXCLUDED.overlays`,
		t.SermonID, t.Text, words, overlays)
	if err != nil {
		return fmt.Errorf("postgres store: save transcript %s: %w", t.SermonID, err)
	}
	return nil
}

// GetTranscript implements [store.Store].
func (s *Store) GetTranscript(ctx context.Context, sermonID string) (*transcript.Transcript, error) {
	var (
		t        transcript.Transcript
		words    []byte
		overlays []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT text, words, overlays FROM transcripts WHERE sermon_id = $1`, sermonID).
		Scan(&t.Text, &words, &overlays)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres store: transcript for %s: %w", sermonID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get transcript %s: %w", sermonID, err)
	}
	t.SermonID = sermonID
	if err := json.Unmarshal(words, &t.Words); err != nil {
		return nil, fmt.Errorf("postgres store: decode words: %w", err)
	}
	if err := json.Unmarshal(overlays, &t.Overlays); err != nil {
		return nil, fmt.Errorf("postgres store: decode overlays: %w", err)
	}
	return &t, nil
}

// SaveStudyGuide implements [store.Store].
func (s *Store) SaveStudyGuide(ctx context.Context, g *studyguide.StudyGuide) error {
	payload, err := studyguide.Encode(g)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO study_guides (sermon_id, payload) VALUES ($1, $2)
		ON CONFLICT (sermon_id) DO UPDATE SET payload = EXCLUDED.payload`,
		g.SermonID, payload)
	if err != nil {
		return fmt.Errorf("postgres store: save study guide %s: %w", g.SermonID, err)
	}
	return nil
}

// GetStudyGuide implements [store.Store]. Legacy payloads are migrated
// forward by [studyguide.Decode] on every read.
func (s *Store) GetStudyGuide(ctx context.Context, sermonID string) (*studyguide.StudyGuide, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM study_guides WHERE sermon_id = $1`, sermonID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres store: study guide for %s: %w", sermonID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get study guide %s: %w", sermonID, err)
	}
	return studyguide.Decode(payload)
}

// SaveEngagement implements [store.Store].
func (s *Store) SaveEngagement(ctx context.Context, r *store.EngagementRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO engagements (fingerprint, user_id, sermon_id, kind, content, position_ns,
			needs_sync, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fingerprint) DO UPDATE SET
			content = EXCLUDED.content,
			position_ns = EXCLUDED.position_ns,
			needs_sync = EXCLUDED.needs_sync,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at`,
		r.Fingerprint, r.UserID, r.SermonID, r.Kind, r.Content, int64(r.Position),
		r.NeedsSync, r.UpdatedAt, r.DeletedAt)
	if err != nil {
		return fmt.Errorf("postgres store: save engagement %s: %w", r.Fingerprint, err)
	}
	return nil
}

// Engagements implements [store.Store].
func (s *Store) Engagements(ctx context.Context, sermonID string) ([]store.EngagementRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fingerprint, user_id, sermon_id, kind, content, position_ns,
			needs_sync, updated_at, deleted_at
		FROM engagements
		WHERE sermon_id = $1 AND deleted_at IS NULL
		ORDER BY fingerprint`, sermonID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: engagements for %s: %w", sermonID, err)
	}
	defer rows.Close()

	var out []store.EngagementRecord
	for rows.Next() {
		var (
			r          store.EngagementRecord
			positionNS int64
		)
		if err := rows.Scan(&r.Fingerprint, &r.UserID, &r.SermonID, &r.Kind, &r.Content,
			&positionNS, &r.NeedsSync, &r.UpdatedAt, &r.DeletedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan engagement: %w", err)
		}
		r.Position = time.Duration(positionNS)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: engagements for %s: %w", sermonID, err)
	}
	return out, nil
}

// DeleteEngagement implements [store.Store].
func (s *Store) DeleteEngagement(ctx context.Context, fp string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE engagements SET deleted_at = now(), needs_sync = true, updated_at = now()
		WHERE fingerprint = $1 AND deleted_at IS NULL`, fp)
	if err != nil {
		return fmt.Errorf("postgres store: delete engagement %s: %w", fp, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: engagement %s: %w", fp, store.ErrNotFound)
	}
	return nil
}

// ApplyRemoteEngagement implements [store.Store].
func (s *Store) ApplyRemoteEngagement(ctx context.Context, remote *store.EngagementRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: apply remote engagement: %w", err)
	}
	defer tx.Rollback(ctx)

	var localUpdated time.Time
	err = tx.QueryRow(ctx,
		`SELECT updated_at FROM engagements WHERE fingerprint = $1 FOR UPDATE`,
		remote.Fingerprint).Scan(&localUpdated)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("postgres store: apply remote engagement %s: %w", remote.Fingerprint, err)
	default:
		if !store.RemoteWins(localUpdated, remote.UpdatedAt, remote.Fingerprint, remote.Fingerprint) {
			return nil
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO engagements (fingerprint, user_id, sermon_id, kind, content, position_ns,
			needs_sync, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)
		ON CONFLICT (fingerprint) DO UPDATE SET
			content = EXCLUDED.content,
			position_ns = EXCLUDED.position_ns,
			needs_sync = false,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at`,
		remote.Fingerprint, remote.UserID, remote.SermonID, remote.Kind, remote.Content,
		int64(remote.Position), remote.UpdatedAt, remote.DeletedAt)
	if err != nil {
		return fmt.Errorf("postgres store: apply remote engagement %s: %w", remote.Fingerprint, err)
	}
	return tx.Commit(ctx)
}
