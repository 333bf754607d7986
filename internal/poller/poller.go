package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/cwygoda/shotgrab/internal/domain"
	"github.com/cwygoda/shotgrab/internal/logging"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the fixed delay between status queries.
const DefaultInterval = 5 * time.Second

// Poller queries job status on a fixed interval until the job is ready
// or has failed.
type Poller struct {
	api         domain.CaptureAPI
	interval    time.Duration
	maxAttempts int
	wait        func(ctx context.Context, d time.Duration) error
	log         logrus.FieldLogger
}

var _ domain.StatusPoller = (*Poller)(nil)

// New creates a new poller. maxAttempts <= 0 polls without bound.
func New(api domain.CaptureAPI, interval time.Duration, maxAttempts int, log logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Poller{
		api:         api,
		interval:    interval,
		maxAttempts: maxAttempts,
		wait:        sleep,
		log:         log,
	}
}

// UntilReady polls key until the service reports ready or error.
// Transport and decoding failures end the loop immediately.
func (p *Poller) UntilReady(ctx context.Context, credential string, key domain.JobKey) (string, error) {
	log := p.log.WithField("job_key", key)

	for attempt := 1; ; attempt++ {
		report, err := p.api.Retrieve(ctx, credential, key)
		if err != nil {
			return "", err
		}

		switch report.Status {
		case domain.StatusReady:
			if report.ImageURL == "" {
				return "", domain.NewError(domain.ErrMalformedResponse, "ready status without imageUrl", nil)
			}
			log.WithField("attempt", attempt).Debug("capture ready")
			return report.ImageURL, nil
		case domain.StatusError:
			return "", domain.NewError(domain.ErrRemoteJob, report.Message, nil)
		}

		if p.maxAttempts > 0 && attempt >= p.maxAttempts {
			return "", domain.NewError(domain.ErrPollLimit, fmt.Sprintf("job %s not ready after %d attempts", key, attempt), nil)
		}

		log.WithFields(logrus.Fields{"attempt": attempt, "status": report.Status}).
			Debugf("capture not yet ready, waiting %s", p.interval)

		if err := p.wait(ctx, p.interval); err != nil {
			return "", err
		}
	}
}

// sleep blocks only the calling goroutine and returns early on cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
