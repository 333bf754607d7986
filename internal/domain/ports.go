package domain

import (
	"context"
	"io"
)

// CaptureAPI is the driven port for the remote capture service.
type CaptureAPI interface {
	Submit(ctx context.Context, credential string, req CaptureRequest) (JobKey, error)
	Retrieve(ctx context.Context, credential string, key JobKey) (*StatusReport, error)
}

// StatusPoller waits until a job is ready and returns its image URL.
type StatusPoller interface {
	UntilReady(ctx context.Context, credential string, key JobKey) (string, error)
}

// ImageFetcher opens the rendered image for reading.
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (io.ReadCloser, error)
}

// ImageStore persists image bytes for a job under dir and returns the path.
type ImageStore interface {
	Save(ctx context.Context, dir string, key JobKey, r io.Reader) (string, error)
}

// HistoryRepository is the driven port for the capture history ledger.
type HistoryRepository interface {
	Record(ctx context.Context, c *Capture) error
	Get(ctx context.Context, key JobKey) (*Capture, error)
	List(ctx context.Context, limit int) ([]Capture, error)
	RecoverStale(ctx context.Context) (int64, error)
}
