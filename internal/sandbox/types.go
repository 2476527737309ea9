package sandbox

// FailureKind classifies why an execution did not succeed. It is produced
// at the source so that no caller ever has to sniff error text to recover
// a category.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureTimeout
	FailureMemory
	FailureRuntime
	FailureInfra
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTimeout:
		return "timeout"
	case FailureMemory:
		return "memory"
	case FailureRuntime:
		return "runtime"
	case FailureInfra:
		return "infra"
	}
	return "unknown"
}

// ExecRequest is one unit of sandboxed work, constructed per test case.
type ExecRequest struct {
	Code       string
	LanguageID string
	Input      string

	// Zero values fall back to the language profile defaults.
	TimeLimitSec  int
	MemoryLimitMB int

	// ReuseWorkspace references a compiled workspace produced by Compile.
	// The executor clones it per run so concurrent cases never share
	// mutable state.
	ReuseWorkspace string
}

// ExecResult is the outcome of one sandboxed run.
type ExecResult struct {
	Success  bool
	Output   string
	Error    string
	ExitCode int

	RuntimeMillis int64
	MemoryMB      int64
	// MemoryApprox marks memory figures that were estimated rather than
	// read from the sandbox runtime's accounting.
	MemoryApprox bool

	Kind FailureKind
}

// CompileResult is the outcome of the compile-once phase. On success
// Workspace references a directory holding the build artifacts, ready to
// be cloned for each test-case run.
type CompileResult struct {
	Success   bool
	Workspace string
	Error     string

	RuntimeMillis int64
}
