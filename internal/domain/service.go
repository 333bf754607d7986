package domain

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// CaptureService runs capture jobs from submission to delivery.
// It holds no per-job state and is safe for concurrent use.
type CaptureService struct {
	api     CaptureAPI
	poller  StatusPoller
	fetcher ImageFetcher
	store   ImageStore
	history HistoryRepository
	log     logrus.FieldLogger
}

// Option configures a CaptureService.
type Option func(*CaptureService)

// WithHistory records every orchestration in repo.
func WithHistory(repo HistoryRepository) Option {
	return func(s *CaptureService) { s.history = repo }
}

// WithLogger sets the logger used by the service.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *CaptureService) { s.log = log }
}

// NewCaptureService creates a new CaptureService.
func NewCaptureService(api CaptureAPI, poller StatusPoller, fetcher ImageFetcher, store ImageStore, opts ...Option) *CaptureService {
	s := &CaptureService{
		api:     api,
		poller:  poller,
		fetcher: fetcher,
		store:   store,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	return s
}

// Submit starts a capture job and returns its key.
func (s *CaptureService) Submit(ctx context.Context, credential string, req CaptureRequest) (JobKey, error) {
	return s.api.Submit(ctx, credential, req)
}

// PollUntilReady waits for the job to render and returns the image URL.
func (s *CaptureService) PollUntilReady(ctx context.Context, credential string, key JobKey) (string, error) {
	return s.poller.UntilReady(ctx, credential, key)
}

// DeliverAsURL returns the temporary image URL as is.
func (s *CaptureService) DeliverAsURL(imageURL string) string {
	return imageURL
}

// DeliverAsFile downloads the image to {outputDir}/{key}.png.
func (s *CaptureService) DeliverAsFile(ctx context.Context, imageURL string, key JobKey, outputDir string) (string, error) {
	return s.FileDelivery(outputDir).Deliver(ctx, key, imageURL)
}

// FileDelivery returns the file strategy writing into outputDir.
func (s *CaptureService) FileDelivery(outputDir string) Delivery {
	return FileDelivery{Dir: outputDir, Fetcher: s.fetcher, Store: s.store}
}

// CaptureAndSaveToFile submits, polls and saves the image to outputDir.
func (s *CaptureService) CaptureAndSaveToFile(ctx context.Context, credential string, req CaptureRequest, outputDir string) (string, error) {
	res, err := s.Capture(ctx, credential, req, s.FileDelivery(outputDir))
	if err != nil {
		return "", err
	}
	return res.Location, nil
}

// CaptureAndGetTemporaryURL submits, polls and returns the remote image URL.
func (s *CaptureService) CaptureAndGetTemporaryURL(ctx context.Context, credential string, req CaptureRequest) (string, error) {
	res, err := s.Capture(ctx, credential, req, URLDelivery{})
	if err != nil {
		return "", err
	}
	return res.Location, nil
}

// Capture runs submit, poll and delivery in order. The first failing stage
// ends the run and its error is returned unchanged.
func (s *CaptureService) Capture(ctx context.Context, credential string, req CaptureRequest, d Delivery) (*Result, error) {
	key, err := s.api.Submit(ctx, credential, req)
	if err != nil {
		s.log.WithField("kind", KindOf(err)).Warnf("capture submit failed: %v", err)
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"job_key": key, "delivery": d.Name()})
	log.Infof("accepted capture request for %s", req.TargetURL())

	entry := &Capture{
		Key:       key,
		TargetURL: req.TargetURL(),
		State:     CaptureSubmitted,
		Delivery:  d.Name(),
	}
	s.record(ctx, entry)

	imageURL, err := s.poller.UntilReady(ctx, credential, key)
	if err != nil {
		s.fail(ctx, log, entry, err)
		return nil, err
	}
	entry.ImageURL = imageURL

	location, err := d.Deliver(ctx, key, imageURL)
	if err != nil {
		s.fail(ctx, log, entry, err)
		return nil, err
	}

	entry.State = CaptureReady
	if location != imageURL {
		entry.Path = location
	}
	s.record(ctx, entry)
	log.WithField("location", location).Info("capture delivered")

	return &Result{Key: key, ImageURL: imageURL, Location: location}, nil
}

// Lookup returns the recorded history entry for key.
func (s *CaptureService) Lookup(ctx context.Context, key JobKey) (*Capture, error) {
	if s.history == nil {
		return nil, ErrCaptureNotFound
	}
	return s.history.Get(ctx, key)
}

// Recent lists up to limit history entries, newest first.
func (s *CaptureService) Recent(ctx context.Context, limit int) ([]Capture, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx, limit)
}

// RecoverStale marks history entries left unfinished by an earlier
// process as failed.
func (s *CaptureService) RecoverStale(ctx context.Context) (int64, error) {
	if s.history == nil {
		return 0, nil
	}
	return s.history.RecoverStale(ctx)
}

func (s *CaptureService) fail(ctx context.Context, log logrus.FieldLogger, entry *Capture, err error) {
	log.WithField("kind", KindOf(err)).Warnf("capture failed: %v", err)
	entry.State = CaptureFailed
	entry.Error = err.Error()
	s.record(ctx, entry)
}

// record writes to history. Failures never change the capture outcome.
func (s *CaptureService) record(ctx context.Context, entry *Capture) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.log.WithField("job_key", entry.Key).Warnf("record history: %v", err)
	}
}
