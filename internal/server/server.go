package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"github.com/codemonster/judge/api"
	"github.com/codemonster/judge/internal/langs"
	"github.com/codemonster/judge/internal/sandbox"
)

// DefaultMaxSyncCases caps the synchronous "Run" path; anything bigger
// belongs on the queue.
const DefaultMaxSyncCases = 5

// Runner is the synchronous judging path. *judge.Orchestrator satisfies it.
type Runner interface {
	RunSequential(ctx context.Context, code, language string, cases []api.TestCase, timeLimitSec, memLimitMB int) api.JudgeResult
}

// Jobs is the queue surface the server exposes. *queue.Queue satisfies it.
type Jobs interface {
	Enqueue(ctx context.Context, sub api.Submission) (string, error)
	JobStatus(ctx context.Context, jobID string) (api.JobStatus, error)
	Stats(ctx context.Context) (api.QueueStats, error)
}

// Sandbox is the executor surface used for bare-input runs and health.
// *sandbox.Executor satisfies it.
type Sandbox interface {
	Execute(ctx context.Context, req sandbox.ExecRequest) sandbox.ExecResult
	HealthCheck(ctx context.Context) bool
	SystemInfo(ctx context.Context) (*sandbox.SystemInfo, error)
}

type Server struct {
	router   *chi.Mux
	runner   Runner
	jobs     Jobs
	sandbox  Sandbox
	registry *langs.Registry
	logger   *slog.Logger

	maxSyncCases int
	httpSrv      *http.Server
}

func New(runner Runner, jobs Jobs, sb Sandbox, registry *langs.Registry, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	reqLogger := httplog.NewLogger("judge", httplog.Options{
		LogLevel:         slog.LevelInfo,
		Concise:          true,
		MessageFieldName: "message",
	})
	router.Use(httplog.RequestLogger(reqLogger))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         3000,
	})
	router.Use(corsMiddleware.Handler)

	s := &Server{
		router:       router,
		runner:       runner,
		jobs:         jobs,
		sandbox:      sb,
		registry:     registry,
		logger:       logger,
		maxSyncCases: DefaultMaxSyncCases,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Post("/api/execute", s.handleExecute)
	s.router.Post("/api/validate", s.handleValidate)
	s.router.Post("/api/submissions", s.handleSubmit)
	s.router.Get("/api/submissions/{jobId}", s.handleJobStatus)
	s.router.Get("/api/queue/stats", s.handleQueueStats)
	s.router.Get("/api/languages", s.handleLanguages)
	s.router.Get("/health", s.handleHealth)
}

// SetMaxSyncCases overrides the synchronous-run case cap.
func (s *Server) SetMaxSyncCases(n int) {
	if n > 0 {
		s.maxSyncCases = n
	}
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(address string) error {
	s.httpSrv = &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server listening", "address", address)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
