package api

// Verdict statuses, in display form. Precedence across failing test cases
// is TIME_LIMIT_EXCEEDED > MEMORY_LIMIT_EXCEEDED > RUNTIME_ERROR >
// WRONG_ANSWER.
const (
	StatusAccepted            = "ACCEPTED"
	StatusWrongAnswer         = "WRONG_ANSWER"
	StatusTimeLimitExceeded   = "TIME_LIMIT_EXCEEDED"
	StatusMemoryLimitExceeded = "MEMORY_LIMIT_EXCEEDED"
	StatusRuntimeError        = "RUNTIME_ERROR"
	StatusCompilationError    = "COMPILATION_ERROR"
	StatusInternalError       = "INTERNAL_ERROR"
)

// TestCaseResult is the outcome of one test case. Ordering in
// JudgeResult.TestCaseResults matches the submitted test-case list.
type TestCaseResult struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	ActualOutput   string `json:"actualOutput"`
	Passed         bool   `json:"passed"`
	Runtime        int64  `json:"runtime"`
	MemoryUsage    int64  `json:"memoryUsage"`
	Error          string `json:"error,omitempty"`
}

// JudgeResult is the terminal artifact of judging one submission.
type JudgeResult struct {
	Status          string           `json:"status"`
	TestCasesPassed int              `json:"testCasesPassed"`
	TotalTestCases  int              `json:"totalTestCases"`
	TestCaseResults []TestCaseResult `json:"testCaseResults"`
	TotalRuntime    int64            `json:"totalRuntime"`
	MaxMemoryUsage  int64            `json:"maxMemoryUsage"`
	ErrorMessage    string           `json:"errorMessage,omitempty"`
}

// Accepted reports whether every case passed.
func (r JudgeResult) Accepted() bool {
	return r.Status == StatusAccepted
}

// WebhookPayload is the fire-and-forget result delivery body.
type WebhookPayload struct {
	SubmissionID string      `json:"submissionId"`
	Result       JudgeResult `json:"result"`
}

// RunOutput is the synchronous single-input run response: raw program
// output, no verdict.
type RunOutput struct {
	Success     bool   `json:"success"`
	Output      string `json:"output"`
	Error       string `json:"error,omitempty"`
	Runtime     int64  `json:"runtime"`
	MemoryUsage int64  `json:"memoryUsage"`
}

// ValidationResult reports structural submission checks.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// EnqueueResponse carries the queue's identifier for a submitted job.
type EnqueueResponse struct {
	JobID string `json:"jobId"`
}

// JobStatus is the status-poll view of a queued submission.
type JobStatus struct {
	JobID       string       `json:"jobId"`
	State       string       `json:"state"`
	Progress    int          `json:"progress"`
	EnqueuedAt  int64        `json:"enqueuedAt"`
	StartedAt   int64        `json:"startedAt,omitempty"`
	FinishedAt  int64        `json:"finishedAt,omitempty"`
	Result      *JudgeResult `json:"result,omitempty"`
	FailedError string       `json:"failedError,omitempty"`
}

// QueueStats counts jobs by state.
type QueueStats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// LanguageInfo is the public view of one registry profile.
type LanguageInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Extension     string `json:"extension"`
	Compiled      bool   `json:"compiled"`
	TimeLimitSec  int    `json:"timeLimit"`
	MemoryLimitMB int    `json:"memoryLimit"`
}

// HealthResponse reports sandbox-runtime reachability plus a runtime
// summary when available.
type HealthResponse struct {
	Healthy bool          `json:"healthy"`
	Details HealthDetails `json:"details"`
}

type HealthDetails struct {
	SandboxRuntime string `json:"sandboxRuntime"`
	SystemInfo     any    `json:"systemInfo,omitempty"`
}
