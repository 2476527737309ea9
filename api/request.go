package api

// TestCase is one input/expected-output pair. Hidden is carried for the
// caller's benefit; judging treats hidden and visible cases identically.
type TestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Hidden bool   `json:"hidden,omitempty"`
}

// Submission is one queued judging job.
type Submission struct {
	SubmissionID string     `json:"submissionId"`
	Code         string     `json:"code"`
	Language     string     `json:"language"`
	ProblemID    string     `json:"problemId,omitempty"`
	UserID       string     `json:"userId,omitempty"`
	TestCases    []TestCase `json:"testCases"`

	// Optional per-problem limits; zero means the language defaults.
	TimeLimitSec  int `json:"timeLimit,omitempty"`
	MemoryLimitMB int `json:"memoryLimit,omitempty"`
}

// ExecuteRequest is the synchronous "Run" request: either a bare Input or
// a short list of test cases.
type ExecuteRequest struct {
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	Input     string     `json:"input,omitempty"`
	TestCases []TestCase `json:"testCases,omitempty"`

	TimeLimitSec  int `json:"timeLimit,omitempty"`
	MemoryLimitMB int `json:"memoryLimit,omitempty"`
}

// ValidateRequest checks a submission's shape without executing anything.
type ValidateRequest struct {
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	TestCases []TestCase `json:"testCases"`
}
