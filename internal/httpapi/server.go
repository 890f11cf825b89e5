package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/spal-labs/transcriberd/internal/jobs"
	"github.com/spal-labs/transcriberd/internal/mail"
)

// smtpTester runs an operator-triggered SMTP smoke test.
type smtpTester interface {
	SmokeTest() error
}

type Server struct {
	store *jobs.Store
	queue *jobs.Queue

	resolver   *mail.Resolver
	dispatcher *mail.Dispatcher
	tester     smtpTester

	dataDir        string
	maxUploadBytes int64

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithUpload enables the multipart upload surface rooted at dataDir.
func WithUpload(dataDir string, maxUploadMB int64) Option {
	return func(s *Server) {
		s.dataDir = dataDir
		s.maxUploadBytes = maxUploadMB << 20
	}
}

// WithResolver exposes recipient group discovery and upload-time validation.
func WithResolver(resolver *mail.Resolver) Option {
	return func(s *Server) {
		s.resolver = resolver
	}
}

// WithDispatcher enables the manual re-send endpoint for done jobs.
func WithDispatcher(dispatcher *mail.Dispatcher) Option {
	return func(s *Server) {
		s.dispatcher = dispatcher
		s.tester = dispatcher
	}
}

func NewServer(store *jobs.Store, queue *jobs.Queue, opts ...Option) *Server {
	s := &Server{
		store: store,
		queue: queue,
		mux:   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/", s.handleJobByID)
	s.mux.HandleFunc("/api/upload", s.handleUpload)
	s.mux.HandleFunc("/api/groups", s.handleGroups)
	s.mux.HandleFunc("/api/smtp/test", s.handleSMTPTest)
	s.mux.HandleFunc("/files/", s.handleDownload)
}
