package bibledb

import (
	"context"
	"sort"
	"sync"
)

// Compile-time interface check.
var _ Lookup = (*MemoryLookup)(nil)

// MemoryLookup is an in-memory [Lookup] for tests and offline bundles. Safe
// for concurrent use; reads after construction are lock-free snapshots in
// practice but guarded anyway so tests may seed concurrently.
type MemoryLookup struct {
	mu       sync.RWMutex
	outgoing map[string][]string
	incoming map[string][]string
	insights map[string][]Insight
}

// NewMemoryLookup creates an empty MemoryLookup.
func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		insights: make(map[string][]Insight),
	}
}

// AddCrossReference records a directed edge.
func (l *MemoryLookup) AddCrossReference(fromID, toID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outgoing[fromID] = append(l.outgoing[fromID], toID)
	l.incoming[toID] = append(l.incoming[toID], fromID)
	sort.Strings(l.outgoing[fromID])
	sort.Strings(l.incoming[toID])
}

// AddInsight records a curated insight for a verse.
func (l *MemoryLookup) AddInsight(i Insight) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insights[i.VerseID] = append(l.insights[i.VerseID], i)
}

// OutgoingIDs implements [Lookup].
func (l *MemoryLookup) OutgoingIDs(_ context.Context, fromID string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.outgoing[fromID]...), nil
}

// IncomingIDs implements [Lookup].
func (l *MemoryLookup) IncomingIDs(_ context.Context, toID string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.incoming[toID]...), nil
}

// Insights implements [Lookup].
func (l *MemoryLookup) Insights(_ context.Context, verseID string) ([]Insight, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Insight(nil), l.insights[verseID]...), nil
}
