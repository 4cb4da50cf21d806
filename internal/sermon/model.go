// Package sermon holds the sermon model and the processing orchestrator that
// drives its two asynchronous job tracks, transcription and study-guide
// generation.
package sermon

import (
	"time"
)

// TrackStatus is the state of one processing track.
type TrackStatus string

const (
	StatusPending   TrackStatus = "pending"
	StatusRunning   TrackStatus = "running"
	StatusSucceeded TrackStatus = "succeeded"
	StatusFailed    TrackStatus = "failed"
)

// Track names one of the two processing axes.
type Track string

const (
	TrackTranscription Track = "transcription"
	TrackStudyGuide    Track = "study_guide"
)

// Sermon is one captured or imported sermon recording with its processing
// state. The two track statuses are mutated only by the [Orchestrator] and
// the sync layer.
type Sermon struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Speaker     string        `json:"speaker,omitempty"`
	RecordedAt  time.Time     `json:"recorded_at"`
	Duration    time.Duration `json:"duration"`
	AudioURL    string        `json:"audio_url,omitempty"`
	ContentHash string        `json:"content_hash"`

	TranscriptionStatus TrackStatus `json:"transcription_status"`
	TranscriptionError  string      `json:"transcription_error,omitempty"`
	StudyGuideStatus    TrackStatus `json:"study_guide_status"`
	StudyGuideError     string      `json:"study_guide_error,omitempty"`

	NeedsSync bool       `json:"needs_sync"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsComplete reports whether both processing tracks have succeeded.
func (s *Sermon) IsComplete() bool {
	return s.TranscriptionStatus == StatusSucceeded && s.StudyGuideStatus == StatusSucceeded
}

// CanViewInDegradedMode reports whether the sermon is viewable transcript-only:
// transcription succeeded but study-guide generation failed. Derived, never
// stored.
func (s *Sermon) CanViewInDegradedMode() bool {
	return s.TranscriptionStatus == StatusSucceeded && s.StudyGuideStatus == StatusFailed
}

// Processing reports whether either track is currently running.
func (s *Sermon) Processing() bool {
	return s.TranscriptionStatus == StatusRunning || s.StudyGuideStatus == StatusRunning
}

// IsDeleted reports whether the sermon carries a soft-delete tombstone.
func (s *Sermon) IsDeleted() bool {
	return s.DeletedAt != nil
}

// trackStatus returns the status of the named track.
func (s *Sermon) trackStatus(track Track) TrackStatus {
	if track == TrackTranscription {
		return s.TranscriptionStatus
	}
	return s.StudyGuideStatus
}

// setTrack updates the named track's status and error message.
func (s *Sermon) setTrack(track Track, status TrackStatus, errMsg string) {
	if track == TrackTranscription {
		s.TranscriptionStatus = status
		s.TranscriptionError = errMsg
	} else {
		s.StudyGuideStatus = status
		s.StudyGuideError = errMsg
	}
}
