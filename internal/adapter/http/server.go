package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cwygoda/shotgrab/internal/domain"
	"github.com/cwygoda/shotgrab/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxTimestampSkew = 5 * time.Minute
	maxBodyBytes     = 1 << 20
	requestIDHeader  = "X-Request-ID"
)

// CaptureRunner is the part of the capture service the server drives.
type CaptureRunner interface {
	Capture(ctx context.Context, credential string, req domain.CaptureRequest, d domain.Delivery) (*domain.Result, error)
	FileDelivery(outputDir string) domain.Delivery
	Lookup(ctx context.Context, key domain.JobKey) (*domain.Capture, error)
}

// Options configures a Server.
type Options struct {
	// Credential is sent to the capture service on behalf of every caller.
	Credential string
	// Secret enables X-Timestamp/X-Signature verification when set.
	Secret    string
	OutputDir string
	Logger    logrus.FieldLogger
}

// Server is the HTTP adapter for the capture service.
type Server struct {
	svc    CaptureRunner
	router chi.Router
	server *http.Server
	opts   Options
	log    logrus.FieldLogger
}

// NewServer creates a new HTTP server.
func NewServer(svc CaptureRunner, addr string, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		svc:    svc,
		router: chi.NewRouter(),
		opts:   opts,
		log:    log.WithField("component", "http"),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)

	r.Post("/captures", s.handleCapture)
	r.Get("/captures/{key}", s.handleGetCapture)
	r.Get("/health", s.handleHealth)
}

// captureRequest is the request body for POST /captures.
type captureRequest struct {
	Options map[string]any `json:"options"`
	Deliver string         `json:"deliver"`
}

// captureResponse is the JSON response for capture endpoints.
type captureResponse struct {
	Key       string `json:"key"`
	TargetURL string `json:"target_url,omitempty"`
	Status    string `json:"status"`
	Delivery  string `json:"delivery,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	log := s.requestLog(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if s.opts.Secret != "" {
		if err := verifySignature(r, body, s.opts.Secret, time.Now()); err != nil {
			log.Warnf("capture verification failed: %v", err)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
	}

	var req captureRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Options) == 0 {
		s.writeError(w, http.StatusBadRequest, "options are required")
		return
	}

	var delivery domain.Delivery
	switch strings.ToLower(strings.TrimSpace(req.Deliver)) {
	case "", "url":
		delivery = domain.URLDelivery{}
	case "file":
		delivery = s.svc.FileDelivery(s.opts.OutputDir)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown delivery %q", req.Deliver))
		return
	}

	res, err := s.svc.Capture(r.Context(), s.opts.Credential, domain.CaptureRequest(req.Options), delivery)
	if err != nil {
		status := statusForError(err)
		log.WithFields(logrus.Fields{"kind": domain.KindOf(err), "status": status}).Warnf("capture error: %v", err)
		s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: domain.KindOf(err)})
		return
	}

	resp := captureResponse{
		Key:      string(res.Key),
		Status:   string(domain.CaptureReady),
		Delivery: delivery.Name(),
		ImageURL: res.ImageURL,
	}
	if res.Location != res.ImageURL {
		resp.Path = res.Location
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if strings.TrimSpace(key) == "" {
		s.writeError(w, http.StatusBadRequest, "invalid capture key")
		return
	}

	c, err := s.svc.Lookup(r.Context(), domain.JobKey(key))
	if err != nil {
		if errors.Is(err, domain.ErrCaptureNotFound) {
			s.writeError(w, http.StatusNotFound, "capture not found")
			return
		}
		s.requestLog(r).Errorf("get capture error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, captureToResponse(c))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifySignature checks SHA256("${timestamp}\n${body}\n${secret}") against
// X-Signature, rejecting timestamps more than maxTimestampSkew from now.
func verifySignature(r *http.Request, body []byte, secret string, now time.Time) error {
	timestamp := r.Header.Get("X-Timestamp")
	if timestamp == "" {
		return fmt.Errorf("missing X-Timestamp header")
	}

	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("invalid X-Timestamp: must be ISO8601/RFC3339 format")
	}

	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxTimestampSkew {
		return fmt.Errorf("X-Timestamp too far from current time (skew: %v, max: %v)", skew.Truncate(time.Second), maxTimestampSkew)
	}

	signature := r.Header.Get("X-Signature")
	if signature == "" {
		return fmt.Errorf("missing X-Signature header")
	}

	if subtle.ConstantTimeCompare([]byte(signature), []byte(Sign(timestamp, body, secret))) != 1 {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// Sign returns the hex signature a client sends in X-Signature.
func Sign(timestamp string, body []byte, secret string) string {
	payload := fmt.Sprintf("%s\n%s\n%s", timestamp, string(body), secret)
	hash := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(hash[:])
}

// statusForError maps capture error kinds to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrRequestRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPollLimit):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrDownload):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrRemoteJob),
		errors.Is(err, domain.ErrAuthentication),
		errors.Is(err, domain.ErrNetwork),
		errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		r.Header.Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(r *http.Request) logrus.FieldLogger {
	return s.log.WithFields(logrus.Fields{
		"request_id": r.Header.Get(requestIDHeader),
		"path":       r.URL.Path,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func captureToResponse(c *domain.Capture) captureResponse {
	resp := captureResponse{
		Key:       string(c.Key),
		TargetURL: c.TargetURL,
		Status:    string(c.State),
		Delivery:  c.Delivery,
		ImageURL:  c.ImageURL,
		Path:      c.Path,
		Error:     c.Error,
	}
	if !c.CreatedAt.IsZero() {
		resp.CreatedAt = c.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !c.UpdatedAt.IsZero() {
		resp.UpdatedAt = c.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.server.Addr).Info("HTTP server listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Port extracts the port from the address.
func (s *Server) Port() int {
	addr := s.server.Addr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		port, _ := strconv.Atoi(addr[idx+1:])
		return port
	}
	return 0
}
