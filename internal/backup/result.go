package backup

import (
	"time"

	"github.com/daypack/daypack/internal/scan"
)

// State is the orchestrator's position in the per-day pipeline.
type State int

const (
	StateIdle State = iota
	StateEnumerating
	StateBatchingNext
	StateArchiving
	StateUploading
	StateManifestCommitting
	StateDayComplete
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnumerating:
		return "enumerating"
	case StateBatchingNext:
		return "batching-next"
	case StateArchiving:
		return "archiving"
	case StateUploading:
		return "uploading"
	case StateManifestCommitting:
		return "manifest-committing"
	case StateDayComplete:
		return "day-complete"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Status is the overall outcome of a day-run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial" // completed, but some files were skipped
	StatusFailed  Status = "failed"
)

// RunResult summarizes one day-run.
type RunResult struct {
	RunID          string             `json:"run_id"`
	DayKey         string             `json:"day_key"`
	Status         Status             `json:"status"`
	Files          int                `json:"files"`
	TotalBytes     int64              `json:"total_bytes"`
	Batches        int                `json:"batches"`
	UploadedBatch  int                `json:"uploaded_batches"`
	SkippedBatch   int                `json:"skipped_batches"` // already committed before this run
	UploadedBytes  int64              `json:"uploaded_bytes"`  // compressed archive bytes uploaded
	SkippedFiles   []scan.SkippedFile `json:"skipped_files,omitempty"`
	Duration       time.Duration      `json:"duration"`
	ReEnumerations int                `json:"re_enumerations,omitempty"`
}
