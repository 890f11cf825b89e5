package jobs

import "time"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further status transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Failure reasons written by the store itself.
const (
	ReasonCancelled   = "cancelled"
	ReasonInterrupted = "interrupted"
)

type CreateRequest struct {
	Name       string
	Slug       string
	SourcePath string
	Group      string
}

// Job is one uploaded file's transcription lifecycle.
// Status only moves queued -> processing -> {done, failed}.
type Job struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Slug       string     `json:"slug"`
	SourcePath string     `json:"source_path"`
	Group      string     `json:"group,omitempty"`
	Status     Status     `json:"status"`
	Progress   float64    `json:"progress"`
	ResultPath string     `json:"result_path,omitempty"`
	Error      string     `json:"error,omitempty"`
	Log        []string   `json:"log,omitempty"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
