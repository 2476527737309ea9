package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codemonster/judge/api"
	"github.com/codemonster/judge/internal/httpjson"
	"github.com/codemonster/judge/internal/langs"
	"github.com/codemonster/judge/internal/queue"
	"github.com/codemonster/judge/internal/sandbox"
)

// handleExecute is the synchronous "Run" path. With test cases it judges
// up to maxSyncCases of them sequentially; with a bare input it runs once
// and returns the raw output.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req api.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteErrorJson(w, "invalid request body", http.StatusBadRequest, "bad_request")
		return
	}
	if req.Code == "" {
		httpjson.WriteErrorJson(w, "code must not be empty", http.StatusBadRequest, "empty_code")
		return
	}
	if _, err := s.registry.Resolve(req.Language); err != nil {
		httpjson.WriteErrorJson(w, err.Error(), http.StatusBadRequest, "unsupported_language")
		return
	}

	if len(req.TestCases) == 0 {
		res := s.sandbox.Execute(r.Context(), sandbox.ExecRequest{
			Code:          req.Code,
			LanguageID:    req.Language,
			Input:         req.Input,
			TimeLimitSec:  req.TimeLimitSec,
			MemoryLimitMB: req.MemoryLimitMB,
		})
		httpjson.WriteSuccessJson(w, api.RunOutput{
			Success:     res.Success,
			Output:      res.Output,
			Error:       res.Error,
			Runtime:     res.RuntimeMillis,
			MemoryUsage: res.MemoryMB,
		})
		return
	}

	cases := req.TestCases
	if len(cases) > s.maxSyncCases {
		cases = cases[:s.maxSyncCases]
	}
	result := s.runner.RunSequential(r.Context(), req.Code, req.Language, cases, req.TimeLimitSec, req.MemoryLimitMB)
	httpjson.WriteSuccessJson(w, result)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req api.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteErrorJson(w, "invalid request body", http.StatusBadRequest, "bad_request")
		return
	}
	httpjson.WriteSuccessJson(w, s.validate(req.Code, req.Language, req.TestCases))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub api.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		httpjson.WriteErrorJson(w, "invalid request body", http.StatusBadRequest, "bad_request")
		return
	}
	if sub.SubmissionID == "" {
		httpjson.WriteErrorJson(w, "submissionId must not be empty", http.StatusBadRequest, "empty_submission_id")
		return
	}
	if v := s.validate(sub.Code, sub.Language, sub.TestCases); !v.Valid {
		httpjson.WriteErrorJson(w, v.Errors[0], http.StatusBadRequest, "invalid_submission")
		return
	}

	jobID, err := s.jobs.Enqueue(r.Context(), sub)
	if err != nil {
		s.logger.Error("failed to enqueue submission", "submission", sub.SubmissionID, "error", err)
		httpjson.WriteErrorJson(w, "failed to enqueue submission", http.StatusInternalServerError, "enqueue_failed")
		return
	}
	httpjson.WriteSuccessJson(w, api.EnqueueResponse{JobID: jobID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	st, err := s.jobs.JobStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			httpjson.WriteErrorJson(w, err.Error(), http.StatusNotFound, "job_not_found")
			return
		}
		s.logger.Error("failed to read job status", "job", jobID, "error", err)
		httpjson.WriteErrorJson(w, "failed to read job status", http.StatusInternalServerError, "status_failed")
		return
	}
	httpjson.WriteSuccessJson(w, st)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.jobs.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to read queue stats", "error", err)
		httpjson.WriteErrorJson(w, "failed to read queue stats", http.StatusInternalServerError, "stats_failed")
		return
	}
	httpjson.WriteSuccessJson(w, stats)
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	profiles := s.registry.List()
	out := make([]api.LanguageInfo, len(profiles))
	for i, p := range profiles {
		out[i] = api.LanguageInfo{
			ID:            p.ID,
			Name:          p.Name,
			Extension:     p.Extension,
			Compiled:      p.NeedsCompilation(),
			TimeLimitSec:  p.TimeLimitSec,
			MemoryLimitMB: p.MemoryLimitMB,
		}
	}
	httpjson.WriteSuccessJson(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.sandbox.HealthCheck(r.Context())
	resp := api.HealthResponse{Healthy: healthy}
	if healthy {
		resp.Details.SandboxRuntime = "ok"
		if info, err := s.sandbox.SystemInfo(r.Context()); err == nil {
			resp.Details.SystemInfo = info
		}
		httpjson.WriteSuccessJson(w, resp)
		return
	}

	resp.Details.SandboxRuntime = "unreachable"
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(httpjson.JsonResponse{Status: "error", Data: resp, ErrMsg: "sandbox runtime unreachable"})
}

func (s *Server) validate(code, language string, cases []api.TestCase) api.ValidationResult {
	var errs []string
	if code == "" {
		errs = append(errs, "code must not be empty")
	}
	if !s.registry.Supported(language) {
		errs = append(errs, langs.ErrUnsupportedLanguage.Error()+": "+language)
	}
	if len(cases) == 0 {
		errs = append(errs, "at least one test case is required")
	}
	return api.ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
