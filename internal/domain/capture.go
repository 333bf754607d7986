package domain

import (
	"path/filepath"
	"time"
)

// JobKey identifies one capture job at the remote service.
type JobKey string

// JobStatus is the status reported by the service while a job renders.
type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusReady   JobStatus = "ready"
	StatusError   JobStatus = "error"
)

// CaptureRequest holds the capture options sent verbatim to the service.
type CaptureRequest map[string]any

// TargetURL returns the "url" option, or "" when absent or not a string.
func (r CaptureRequest) TargetURL() string {
	s, _ := r["url"].(string)
	return s
}

// StatusReport is one observation of a job's status.
type StatusReport struct {
	Status   JobStatus
	ImageURL string
	Message  string
}

// FilePath returns where the image for key is saved under dir.
func FilePath(dir string, key JobKey) string {
	return filepath.Join(dir, string(key)+".png")
}

// CaptureState is the outcome recorded in the capture history.
type CaptureState string

const (
	CaptureSubmitted CaptureState = "submitted"
	CaptureReady     CaptureState = "ready"
	CaptureFailed    CaptureState = "error"
)

// Capture is a history entry for one orchestration.
type Capture struct {
	Key       JobKey
	TargetURL string
	State     CaptureState
	Delivery  string
	ImageURL  string
	Path      string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Result is what a finished orchestration hands back to its caller.
type Result struct {
	Key      JobKey
	ImageURL string
	// Location is the delivered value: the image URL or the saved file path.
	Location string
}
