package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cwygoda/shotgrab/internal/domain"
)

// scriptedAPI implements domain.CaptureAPI, replaying status reports in order.
type scriptedAPI struct {
	mu      sync.Mutex
	reports []*domain.StatusReport
	errs    []error
	calls   int
	keys    []domain.JobKey
	creds   []string
}

func (s *scriptedAPI) Submit(ctx context.Context, credential string, req domain.CaptureRequest) (domain.JobKey, error) {
	return "", errors.New("not used")
}

func (s *scriptedAPI) Retrieve(ctx context.Context, credential string, key domain.JobKey) (*domain.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.keys = append(s.keys, key)
	s.creds = append(s.creds, credential)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.reports) {
		return &domain.StatusReport{Status: domain.StatusPending}, nil
	}
	return s.reports[i], nil
}

func pending() *domain.StatusReport { return &domain.StatusReport{Status: domain.StatusPending} }

// recordWaits replaces the poller's wait with one that records delays.
func recordWaits(p *Poller) *[]time.Duration {
	var waits []time.Duration
	p.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return &waits
}

func TestPoller_PendingThenReady(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		api := &scriptedAPI{}
		for i := 0; i < n; i++ {
			api.reports = append(api.reports, pending())
		}
		api.reports = append(api.reports, &domain.StatusReport{Status: domain.StatusReady, ImageURL: "https://img/x.png"})

		p := New(api, 5*time.Second, 0, nil)
		waits := recordWaits(p)

		got, err := p.UntilReady(context.Background(), "abc", "k1")
		if err != nil {
			t.Fatalf("n=%d: UntilReady() error = %v", n, err)
		}
		if got != "https://img/x.png" {
			t.Errorf("n=%d: UntilReady() = %q, want %q", n, got, "https://img/x.png")
		}
		if api.calls != n+1 {
			t.Errorf("n=%d: status queries = %d, want %d", n, api.calls, n+1)
		}
		if len(*waits) != n {
			t.Errorf("n=%d: waits = %d, want %d", n, len(*waits), n)
		}
		for _, d := range *waits {
			if d != 5*time.Second {
				t.Errorf("n=%d: wait = %v, want 5s", n, d)
			}
		}
		for i, k := range api.keys {
			if k != "k1" || api.creds[i] != "abc" {
				t.Errorf("n=%d: query %d used key %q cred %q", n, i, k, api.creds[i])
			}
		}
	}
}

func TestPoller_UnknownStatusKeepsPolling(t *testing.T) {
	api := &scriptedAPI{reports: []*domain.StatusReport{
		{Status: ""},
		{Status: "processing"},
		{Status: domain.StatusReady, ImageURL: "https://img/y.png"},
	}}
	p := New(api, time.Second, 0, nil)
	recordWaits(p)

	got, err := p.UntilReady(context.Background(), "abc", "k1")
	if err != nil {
		t.Fatalf("UntilReady() error = %v", err)
	}
	if got != "https://img/y.png" || api.calls != 3 {
		t.Errorf("got %q after %d calls, want https://img/y.png after 3", got, api.calls)
	}
}

func TestPoller_RemoteError(t *testing.T) {
	api := &scriptedAPI{reports: []*domain.StatusReport{
		pending(),
		{Status: domain.StatusError, Message: "X"},
		{Status: domain.StatusReady, ImageURL: "https://img/never.png"},
	}}
	p := New(api, time.Second, 0, nil)
	recordWaits(p)

	_, err := p.UntilReady(context.Background(), "abc", "k1")
	if !errors.Is(err, domain.ErrRemoteJob) {
		t.Fatalf("UntilReady() error = %v, want %v", err, domain.ErrRemoteJob)
	}
	if got := domain.DetailOf(err); got != "X" {
		t.Errorf("message = %q, want %q", got, "X")
	}
	if api.calls != 2 {
		t.Errorf("status queries = %d, want 2", api.calls)
	}
}

func TestPoller_TransportErrorNotRetried(t *testing.T) {
	netErr := domain.NewError(domain.ErrNetwork, "GET retrieve", errors.New("timeout"))
	api := &scriptedAPI{
		reports: []*domain.StatusReport{pending(), nil},
		errs:    []error{nil, netErr},
	}
	p := New(api, time.Second, 0, nil)
	recordWaits(p)

	_, err := p.UntilReady(context.Background(), "abc", "k1")
	if err != netErr {
		t.Fatalf("UntilReady() error = %v, want %v", err, netErr)
	}
	if api.calls != 2 {
		t.Errorf("status queries = %d, want 2", api.calls)
	}
}

func TestPoller_ReadyWithoutImageURL(t *testing.T) {
	api := &scriptedAPI{reports: []*domain.StatusReport{{Status: domain.StatusReady}}}
	p := New(api, time.Second, 0, nil)

	_, err := p.UntilReady(context.Background(), "abc", "k1")
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Errorf("UntilReady() error = %v, want %v", err, domain.ErrMalformedResponse)
	}
}

func TestPoller_MaxAttempts(t *testing.T) {
	api := &scriptedAPI{}
	p := New(api, time.Second, 3, nil)
	waits := recordWaits(p)

	_, err := p.UntilReady(context.Background(), "abc", "k1")
	if !errors.Is(err, domain.ErrPollLimit) {
		t.Fatalf("UntilReady() error = %v, want %v", err, domain.ErrPollLimit)
	}
	if api.calls != 3 {
		t.Errorf("status queries = %d, want 3", api.calls)
	}
	if len(*waits) != 2 {
		t.Errorf("waits = %d, want 2", len(*waits))
	}
}

func TestPoller_DefaultInterval(t *testing.T) {
	p := New(&scriptedAPI{}, 0, 0, nil)
	if p.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultInterval)
	}
}

func TestPoller_Cancellation(t *testing.T) {
	api := &scriptedAPI{}
	p := New(api, time.Hour, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := p.UntilReady(ctx, "abc", "k1")
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Error("poller did not stop after context cancellation")
	}
}

func TestPoller_ConcurrentJobsDoNotBlockEachOther(t *testing.T) {
	slow := &scriptedAPI{}
	fast := &scriptedAPI{reports: []*domain.StatusReport{
		pending(),
		{Status: domain.StatusReady, ImageURL: "https://img/fast.png"},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go New(slow, time.Hour, 0, nil).UntilReady(ctx, "abc", "slow")

	done := make(chan string, 1)
	go func() {
		got, _ := New(fast, 10*time.Millisecond, 0, nil).UntilReady(ctx, "abc", "fast")
		done <- got
	}()

	select {
	case got := <-done:
		if got != "https://img/fast.png" {
			t.Errorf("fast job = %q", got)
		}
	case <-time.After(time.Second):
		t.Error("fast job blocked behind slow job")
	}
}
