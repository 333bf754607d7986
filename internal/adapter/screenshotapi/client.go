package screenshotapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cwygoda/shotgrab/internal/domain"
	"github.com/cwygoda/shotgrab/internal/logging"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the public capture service endpoint.
	DefaultBaseURL = "https://api.screenshotapi.io"

	credentialHeader = "apikey"
	defaultUserAgent = "shotgrab/0.1"
	defaultTimeout   = 30 * time.Second
)

// Client talks to the capture service HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	log       logrus.FieldLogger
}

var (
	_ domain.CaptureAPI   = (*Client)(nil)
	_ domain.ImageFetcher = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient builds a Client for the service at baseURL. An empty baseURL
// uses DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		log:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "screenshotapi")
	return c, nil
}

// Submit posts a capture request and returns the job key.
func (c *Client) Submit(ctx context.Context, credential string, req domain.CaptureRequest) (domain.JobKey, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.NewError(domain.ErrRequestRejected, "encode capture request", err)
	}

	resp, err := c.do(ctx, http.MethodPost, &url.URL{Path: "capture"}, credential, body)
	if err != nil {
		return "", err
	}
	if err := classify(resp); err != nil {
		return "", err
	}

	var payload captureResponse
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return "", domain.NewError(domain.ErrMalformedResponse, "decode capture response", err)
	}
	if strings.TrimSpace(payload.Key) == "" {
		return "", domain.NewError(domain.ErrMalformedResponse, "capture response has no key", nil)
	}

	c.log.WithField("job_key", payload.Key).Debug("accepted capture request")
	return domain.JobKey(payload.Key), nil
}

// Retrieve queries the current status of a capture job.
func (c *Client) Retrieve(ctx context.Context, credential string, key domain.JobKey) (*domain.StatusReport, error) {
	values := url.Values{}
	values.Set("key", string(key))
	rel := &url.URL{Path: "retrieve", RawQuery: values.Encode()}

	resp, err := c.do(ctx, http.MethodGet, rel, credential, nil)
	if err != nil {
		return nil, err
	}
	if err := classify(resp); err != nil {
		return nil, err
	}

	var payload retrieveResponse
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, domain.NewError(domain.ErrMalformedResponse, "decode retrieve response", err)
	}
	return payload.report(), nil
}

// Fetch opens the image at imageURL. The image host gets no credential.
// The caller must close the returned body.
func (c *Client) Fetch(ctx context.Context, imageURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.log.WithField("url", imageURL).Debug("downloading image")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("image returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// response is a fully read HTTP response from the service.
type response struct {
	statusCode int
	body       []byte
}

// do sends one request to the service. Only transport failures are errors;
// HTTP error statuses are returned for the caller to classify.
func (c *Client) do(ctx context.Context, method string, rel *url.URL, credential string, body []byte) (*response, error) {
	reqURL := c.baseURL.ResolveReference(rel)

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), bodyReader)
	if err != nil {
		return nil, domain.NewError(domain.ErrNetwork, "create request", err)
	}
	req.Header.Set(credentialHeader, credential)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{"method": method, "path": rel.Path}).Warnf("request failed: %v", err)
		return nil, domain.NewError(domain.ErrNetwork, fmt.Sprintf("%s %s", method, rel.Path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewError(domain.ErrNetwork, fmt.Sprintf("read %s response", rel.Path), err)
	}

	c.log.WithFields(logrus.Fields{"method": method, "path": rel.Path, "status": resp.StatusCode}).Debug("api response")
	return &response{statusCode: resp.StatusCode, body: data}, nil
}

// classify maps HTTP error statuses to error kinds. 401 wins over the body.
func classify(resp *response) error {
	switch {
	case resp.statusCode == http.StatusUnauthorized:
		return domain.NewError(domain.ErrAuthentication, "", nil)
	case resp.statusCode >= 400:
		return domain.NewError(domain.ErrRequestRejected, string(resp.body), nil)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse base url %q: missing host", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
