// Package store defines the persistence and sync surface for sermons,
// transcripts, study guides and engagement records.
//
// The store is an upsert-by-id collaborator with dirty-flag propagation: every
// local mutation marks the entity dirty, the sync layer reads dirty entities,
// pushes them, and applies remote updates through the conflict-resolving
// Apply* operations. Sub-package postgres provides the pgx-backed
// implementation; [MemoryStore] backs tests and offline use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/calebmoss/berea/internal/sermon"
	"github.com/calebmoss/berea/internal/transcript"
	"github.com/calebmoss/berea/pkg/studyguide"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// EngagementKind names a kind of user engagement with a sermon.
type EngagementKind string

const (
	EngagementHighlight EngagementKind = "highlight"
	EngagementNote      EngagementKind = "note"
	EngagementBookmark  EngagementKind = "bookmark"
)

// EngagementRecord is one user interaction with a sermon. Its identity is a
// content fingerprint, not a random id: re-deriving or re-syncing the same
// content always lands on the same row.
type EngagementRecord struct {
	Fingerprint string         `json:"fingerprint" db:"fingerprint"`
	UserID      string         `json:"user_id" db:"user_id"`
	SermonID    string         `json:"sermon_id" db:"sermon_id"`
	Kind        EngagementKind `json:"kind" db:"kind"`
	Content     string         `json:"content" db:"content"`
	Position    time.Duration  `json:"position" db:"position"`

	NeedsSync bool       `json:"needs_sync" db:"needs_sync"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Store is the full persistence surface. Implementations are safe for
// concurrent use.
type Store interface {
	// SaveSermon upserts a sermon by id.
	SaveSermon(ctx context.Context, s *sermon.Sermon) error

	// GetSermon returns the sermon or [ErrNotFound]. Soft-deleted sermons
	// are still returned; callers check the tombstone.
	GetSermon(ctx context.Context, id string) (*sermon.Sermon, error)

	// ListSermons returns all non-deleted sermons, newest first.
	ListSermons(ctx context.Context) ([]sermon.Sermon, error)

	// DirtySermons returns every sermon with the dirty flag set, including
	// soft-deleted ones awaiting tombstone propagation.
	DirtySermons(ctx context.Context) ([]sermon.Sermon, error)

	// MarkSermonSynced clears the dirty flag after a successful push.
	MarkSermonSynced(ctx context.Context, id string) error

	// ApplyRemoteSermon merges a remote update: the more recently updated
	// side wins; equal timestamps are broken by content hash.
	ApplyRemoteSermon(ctx context.Context, remote *sermon.Sermon) error

	// SaveTranscript upserts the sermon's transcript including overlays.
	SaveTranscript(ctx context.Context, t *transcript.Transcript) error

	// GetTranscript returns the sermon's transcript or [ErrNotFound].
	GetTranscript(ctx context.Context, sermonID string) (*transcript.Transcript, error)

	// SaveStudyGuide upserts the sermon's study guide at the current schema
	// version.
	SaveStudyGuide(ctx context.Context, g *studyguide.StudyGuide) error

	// GetStudyGuide returns the sermon's study guide or [ErrNotFound],
	// migrating legacy payloads forward on read.
	GetStudyGuide(ctx context.Context, sermonID string) (*studyguide.StudyGuide, error)

	// SaveEngagement upserts an engagement record by fingerprint.
	SaveEngagement(ctx context.Context, r *EngagementRecord) error

	// Engagements returns the sermon's non-deleted engagement records.
	Engagements(ctx context.Context, sermonID string) ([]EngagementRecord, error)

	// DeleteEngagement soft-deletes by fingerprint and marks it dirty.
	DeleteEngagement(ctx context.Context, fp string) error

	// ApplyRemoteEngagement merges a remote engagement record under the same
	// conflict policy as sermons.
	ApplyRemoteEngagement(ctx context.Context, remote *EngagementRecord) error
}

// RemoteWins decides conflict resolution between a local and remote copy of
// the same entity: most recent update wins; an exact timestamp tie is broken
// by the lexicographically higher content hash, so both sides converge on the
// same winner without coordination.
func RemoteWins(localUpdated, remoteUpdated time.Time, localHash, remoteHash string) bool {
	if !remoteUpdated.Equal(localUpdated) {
		return remoteUpdated.After(localUpdated)
	}
	return remoteHash > localHash
}
