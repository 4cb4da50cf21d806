package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/calebmoss/berea/internal/sermon"
	"github.com/calebmoss/berea/internal/transcript"
	"github.com/calebmoss/berea/pkg/studyguide"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory [Store] for tests and offline use. Safe for
// concurrent use; all accessors return copies.
type MemoryStore struct {
	mu          sync.RWMutex
	sermons     map[string]sermon.Sermon
	transcripts map[string]transcript.Transcript
	guides      map[string][]byte
	engagements map[string]EngagementRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sermons:     make(map[string]sermon.Sermon),
		transcripts: make(map[string]transcript.Transcript),
		guides:      make(map[string][]byte),
		engagements: make(map[string]EngagementRecord),
	}
}

// SaveSermon implements [Store].
func (m *MemoryStore) SaveSermon(_ context.Context, s *sermon.Sermon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sermons[s.ID] = *s
	return nil
}

// GetSermon implements [Store].
func (m *MemoryStore) GetSermon(_ context.Context, id string) (*sermon.Sermon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sermons[id]
	if !ok {
		return nil, fmt.Errorf("store: sermon %s: %w", id, ErrNotFound)
	}
	return &s, nil
}

// ListSermons implements [Store].
func (m *MemoryStore) ListSermons(_ context.Context) ([]sermon.Sermon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []sermon.Sermon
	for _, s := range m.sermons {
		if !s.IsDeleted() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out, nil
}

// DirtySermons implements [Store].
func (m *MemoryStore) DirtySermons(_ context.Context) ([]sermon.Sermon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []sermon.Sermon
	for _, s := range m.sermons {
		if s.NeedsSync {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MarkSermonSynced implements [Store].
func (m *MemoryStore) MarkSermonSynced(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sermons[id]
	if !ok {
		return fmt.Errorf("store: sermon %s: %w", id, ErrNotFound)
	}
	s.NeedsSync = false
	m.sermons[id] = s
	return nil
}

// ApplyRemoteSermon implements [Store].
func (m *MemoryStore) ApplyRemoteSermon(_ context.Context, remote *sermon.Sermon) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	local, ok := m.sermons[remote.ID]
	if ok && !RemoteWins(local.UpdatedAt, remote.UpdatedAt, local.ContentHash, remote.ContentHash) {
		return nil
	}
	applied := *remote
	applied.NeedsSync = false
	m.sermons[remote.ID] = applied
	return nil
}

// SaveTranscript implements [Store].
func (m *MemoryStore) SaveTranscript(_ context.Context, t *transcript.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts[t.SermonID] = *t
	return nil
}

// GetTranscript implements [Store].
func (m *MemoryStore) GetTranscript(_ context.Context, sermonID string) (*transcript.Transcript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transcripts[sermonID]
	if !ok {
		return nil, fmt.Errorf("store: transcript for %s: %w", sermonID, ErrNotFound)
	}
	return &t, nil
}

// SaveStudyGuide implements [Store]. Guides are stored encoded so reads
// exercise the same versioned decode path as the postgres store.
func (m *MemoryStore) SaveStudyGuide(_ context.Context, g *studyguide.StudyGuide) error {
	data, err := studyguide.Encode(g)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guides[g.SermonID] = data
	return nil
}

// GetStudyGuide implements [Store].
func (m *MemoryStore) GetStudyGuide(_ context.Context, sermonID string) (*studyguide.StudyGuide, error) {
	m.mu.RLock()
	data, ok := m.guides[sermonID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: study guide for %s: %w", sermonID, ErrNotFound)
	}
	return studyguide.Decode(data)
}

// SaveEngagement implements [Store].
func (m *MemoryStore) SaveEngagement(_ context.Context, r *EngagementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engagements[r.Fingerprint] = *r
	return nil
}

// Engagements implements [Store].
func (m *MemoryStore) Engagements(_ context.Context, sermonID string) ([]EngagementRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []EngagementRecord
	for _, r := range m.engagements {
		if r.SermonID == sermonID && r.DeletedAt == nil {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

// DeleteEngagement implements [Store].
func (m *MemoryStore) DeleteEngagement(_ context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.engagements[fp]
	if !ok {
		return fmt.Errorf("store: engagement %s: %w", fp, ErrNotFound)
	}
	now := time.Now()
	r.DeletedAt = &now
	r.NeedsSync = true
	r.UpdatedAt = now
	m.engagements[fp] = r
	return nil
}

// ApplyRemoteEngagement implements [Store].
func (m *MemoryStore) ApplyRemoteEngagement(_ context.Context, remote *EngagementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	local, ok := m.engagements[remote.Fingerprint]
	if ok && !RemoteWins(local.UpdatedAt, remote.UpdatedAt, local.Fingerprint, remote.Fingerprint) {
		return nil
	}
	applied := *remote
	applied.NeedsSync = false
	m.engagements[remote.Fingerprint] = applied
	return nil
}
