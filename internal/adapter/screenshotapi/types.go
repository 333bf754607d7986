package screenshotapi

import "github.com/cwygoda/shotgrab/internal/domain"

// captureResponse mirrors the payload returned by POST /capture.
type captureResponse struct {
	Key string `json:"key"`
}

// retrieveResponse mirrors the payload returned by GET /retrieve.
type retrieveResponse struct {
	Status   string `json:"status"`
	ImageURL string `json:"imageUrl"`
	Msg      string `json:"msg"`
}

func (r retrieveResponse) report() *domain.StatusReport {
	return &domain.StatusReport{
		Status:   domain.JobStatus(r.Status),
		ImageURL: r.ImageURL,
		Message:  r.Msg,
	}
}
