// Package models defines data structures shared across the LinkMesh client.
package models

import (
	"encoding/json"
	"fmt"
)

// JobStatus is the lifecycle status reported by the analysis engine.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is a final one.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether the status is one of the four known values.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// JobDescriptor is the canonical view of one analysis job. It is owned by the
// synchronizer for the lifetime of the job id and replaced wholesale on every
// accepted frame (last-writer-wins, no field-level merge).
type JobDescriptor struct {
	ID              string    `json:"id"`
	Status          JobStatus `json:"status"`
	Progress        int       `json:"progress"` // 0..100
	Message         string    `json:"message"`
	ResultReference string    `json:"result_file,omitempty"`
}

// StatusFrame is one status update as received from the engine, either over
// the streaming channel or as a poll response.
type StatusFrame struct {
	Status          JobStatus `json:"status"`
	Progress        int       `json:"progress"`
	Message         string    `json:"message"`
	ResultReference string    `json:"result_file,omitempty"`
}

// rawFrame mirrors StatusFrame with pointer fields so that absent keys are
// distinguishable from zero values. The engine has been observed to emit
// partial frames; those are rejected here instead of silently defaulted.
type rawFrame struct {
	Status          *string `json:"status"`
	Progress        *int    `json:"progress"`
	Message         *string `json:"message"`
	ResultReference *string `json:"result_file"`
}

// DecodeStatusFrame parses a status frame strictly. Frames missing any of
// status/progress/message, carrying an unknown status, or reporting progress
// outside [0,100] are rejected.
func DecodeStatusFrame(data []byte) (StatusFrame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return StatusFrame{}, fmt.Errorf("malformed status frame: %w", err)
	}
	if raw.Status == nil || raw.Progress == nil || raw.Message == nil {
		return StatusFrame{}, fmt.Errorf("partial status frame: status/progress/message are all required")
	}
	status := JobStatus(*raw.Status)
	if !status.Valid() {
		return StatusFrame{}, fmt.Errorf("unknown job status %q", *raw.Status)
	}
	if *raw.Progress < 0 || *raw.Progress > 100 {
		return StatusFrame{}, fmt.Errorf("progress %d out of range [0,100]", *raw.Progress)
	}
	frame := StatusFrame{
		Status:   status,
		Progress: *raw.Progress,
		Message:  *raw.Message,
	}
	if raw.ResultReference != nil {
		frame.ResultReference = *raw.ResultReference
	}
	return frame, nil
}

// ProtocolError marks a malformed or unexpected status frame. The frame is
// discarded; the canonical status keeps its last good value.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }

// FileDescriptor identifies an uploaded spreadsheet on the engine side.
type FileDescriptor struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// AnalysisConfig carries the two tunables of an analysis run. Use
// NewAnalysisConfig so values are clamped and never invalid by construction.
type AnalysisConfig struct {
	MinSimilarity     float64 `json:"min_similarity"`     // [0,1]
	AnchorSuggestions int     `json:"anchor_suggestions"` // [1,10]
}

// Engine defaults, matching the analysis service.
const (
	DefaultMinSimilarity     = 0.2
	DefaultAnchorSuggestions = 3
	MaxAnchorSuggestions     = 10
)

// NewAnalysisConfig builds a config with both fields clamped into range.
func NewAnalysisConfig(minSimilarity float64, anchorSuggestions int) AnalysisConfig {
	if minSimilarity < 0 {
		minSimilarity = 0
	}
	if minSimilarity > 1 {
		minSimilarity = 1
	}
	if anchorSuggestions < 1 {
		anchorSuggestions = 1
	}
	if anchorSuggestions > MaxAnchorSuggestions {
		anchorSuggestions = MaxAnchorSuggestions
	}
	return AnalysisConfig{MinSimilarity: minSimilarity, AnchorSuggestions: anchorSuggestions}
}

// SubmitResponse is the engine's answer to POST /analyze.
type SubmitResponse struct {
	JobID string `json:"job_id"`
}

// Suggestion is one proposed internal link.
type Suggestion struct {
	SourceURL         string   `json:"source_url"`
	TargetURL         string   `json:"target_url"`
	SourceTitle       string   `json:"source_title"`
	TargetTitle       string   `json:"target_title"`
	SourceSegment     string   `json:"source_segment"`
	TargetSegment     string   `json:"target_segment"`
	SimilarityScore   float64  `json:"similarity_score"`
	AnchorSuggestions []string `json:"anchor_suggestions"`
}

// SegmentStats aggregates per-segment link counts.
type SegmentStats struct {
	PageCount     int `json:"page_count"`
	IncomingLinks int `json:"incoming_links"`
	OutgoingLinks int `json:"outgoing_links"`
	Suggestions   int `json:"suggestions"`
}

// ResultStats summarizes a completed analysis.
type ResultStats struct {
	TotalSuggestions   int                     `json:"total_suggestions"`
	TotalPages         int                     `json:"total_pages"`
	TotalExistingLinks int                     `json:"total_existing_links"`
	AverageSimilarity  float64                 `json:"average_similarity"`
	SegmentStats       map[string]SegmentStats `json:"segment_stats"`
}

// AnalysisResults is the full result payload for a completed job.
type AnalysisResults struct {
	Suggestions []Suggestion `json:"suggestions"`
	Stats       ResultStats  `json:"stats"`
	Timestamp   string       `json:"timestamp"`
}
