package judge_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemonster/judge/api"
	"github.com/codemonster/judge/internal/judge"
	"github.com/codemonster/judge/internal/langs"
	"github.com/codemonster/judge/internal/sandbox"
)

// fakeExecutor counts compile/run invocations and tracks how many runs are
// in flight at once. The run hook decides each case's outcome from its
// request.
type fakeExecutor struct {
	mu       sync.Mutex
	compiles int
	executes int
	requests []sandbox.ExecRequest
	cleaned  []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	compile sandbox.CompileResult
	delay   time.Duration
	run     func(req sandbox.ExecRequest) sandbox.ExecResult
}

func (f *fakeExecutor) Compile(_ context.Context, _, _ string) sandbox.CompileResult {
	f.mu.Lock()
	f.compiles++
	f.mu.Unlock()
	return f.compile
}

func (f *fakeExecutor) Execute(_ context.Context, req sandbox.ExecRequest) sandbox.ExecResult {
	cur := f.inFlight.Add(1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.executes++
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	return f.run(req)
}

func (f *fakeExecutor) CleanupWorkspace(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, ref)
}

func echoInput(req sandbox.ExecRequest) sandbox.ExecResult {
	return sandbox.ExecResult{Success: true, Output: req.Input, RuntimeMillis: 10, MemoryMB: 16}
}

func newOrchestrator(exec judge.Executor, limit int) *judge.Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return judge.NewOrchestrator(exec, langs.NewRegistry(), limit, logger)
}

func echoCases(n int) []api.TestCase {
	cases := make([]api.TestCase, n)
	for i := range cases {
		v := fmt.Sprintf("%d", i)
		cases[i] = api.TestCase{Input: v, Output: v}
	}
	return cases
}

func TestJudgeAllAccepted(t *testing.T) {
	exec := &fakeExecutor{compile: sandbox.CompileResult{Success: true}, run: echoInput}
	o := newOrchestrator(exec, 5)

	res := o.Judge(context.Background(), api.Submission{
		SubmissionID: "sub-1",
		Code:         "print(input())",
		Language:     "PYTHON",
		TestCases:    echoCases(3),
	})

	assert.Equal(t, api.StatusAccepted, res.Status)
	assert.True(t, res.Accepted())
	assert.Equal(t, 3, res.TestCasesPassed)
	assert.Equal(t, 3, res.TotalTestCases)
	require.Len(t, res.TestCaseResults, 3)
	assert.Equal(t, int64(30), res.TotalRuntime)
	assert.Equal(t, int64(16), res.MaxMemoryUsage)
}

func TestJudgePrecedenceTimeoutOverWrongAnswer(t *testing.T) {
	exec := &fakeExecutor{
		compile: sandbox.CompileResult{Success: true},
		run: func(req sandbox.ExecRequest) sandbox.ExecResult {
			if req.Input == "0" {
				return sandbox.ExecResult{Success: true, Output: "wrong", RuntimeMillis: 5}
			}
			return sandbox.ExecResult{
				Success: false, Error: "time limit exceeded",
				RuntimeMillis: 2000, Kind: sandbox.FailureTimeout,
			}
		},
	}
	o := newOrchestrator(exec, 5)

	res := o.Judge(context.Background(), api.Submission{
		Code: "x", Language: "PYTHON", TestCases: echoCases(2),
	})

	assert.Equal(t, api.StatusTimeLimitExceeded, res.Status)
	assert.Equal(t, 0, res.TestCasesPassed)
}

func TestJudgePrecedenceMemoryOverRuntime(t *testing.T) {
	exec := &fakeExecutor{
		compile: sandbox.CompileResult{Success: true},
		run: func(req sandbox.ExecRequest) sandbox.ExecResult {
			if req.Input == "0" {
				return sandbox.ExecResult{Success: false, Error: "crash", Kind: sandbox.FailureRuntime}
			}
			return sandbox.ExecResult{Success: false, Error: "memory limit exceeded", Kind: sandbox.FailureMemory}
		},
	}
	o := newOrchestrator(exec, 5)

	res := o.Judge(context.Background(), api.Submission{
		Code: "x", Language: "PYTHON", TestCases: echoCases(2),
	})

	assert.Equal(t, api.StatusMemoryLimitExceeded, res.Status)
}

func TestJudgeRuntimeErrorRunsAllCases(t *testing.T) {
	exec := &fakeExecutor{
		compile: sandbox.CompileResult{Success: true},
		run: func(req sandbox.ExecRequest) sandbox.ExecResult {
			if req.Input == "1" {
				return sandbox.ExecResult{Success: false, Error: "exit status 1", ExitCode: 1, Kind: sandbox.FailureRuntime}
			}
			return echoInput(req)
		},
	}
	o := newOrchestrator(exec, 5)

	res := o.Judge(context.Background(), api.Submission{
		Code: "x", Language: "PYTHON", TestCases: echoCases(3),
	})

	// The async path never short-circuits: all three cases execute.
	assert.Equal(t, 3, exec.executes)
	assert.Equal(t, api.StatusRuntimeError, res.Status)
	assert.Equal(t, 2, res.TestCasesPassed)
	assert.Equal(t, 3, res.TotalTestCases)
}

func TestJudgeCompilationError(t *testing.T) {
	exec := &fakeExecutor{
		compile: sandbox.CompileResult{Error: "main.cpp:1: error: expected ';'"},
		run:     echoInput,
	}
	o := newOrchestrator(exec, 5)

	res := o.Judge(context.Background(), api.Submission{
		Code: "x", Language: "CPP", TestCases: echoCases(4),
	})

	assert.Equal(t, api.StatusCompilationError, res.Status)
	assert.Equal(t, 0, res.TestCasesPassed)
	assert.Equal(t, 4, res.TotalTestCases)
	require.Len(t, res.TestCaseResults, 4)
	for _, tcr := range res.TestCaseResults {
		assert.False(t, tcr.Passed)
		assert.Contains(t, tcr.Error, "expected ';'")
	}
	assert.Contains(t, res.ErrorMessage, "expected ';'")
	assert.Zero(t, exec.executes)
}

func TestJudgeCompileOnceRunMany(t *testing.T) {
	exec := &fakeExecutor{
		compile: sandbox.CompileResult{Success: true, Workspace: "/tmp/ws/compiled"},
		run:     echoInput,
	}
	o := newOrchestrator(exec, 5)

	res := o.Judge(context.Background(), api.Submission{
		Code: "x", Language: "CPP", TestCases: echoCases(5),
	})

	assert.Equal(t, api.StatusAccepted, res.Status)
	assert.Equal(t, 1, exec.compiles)
	assert.Equal(t, 5, exec.executes)
	for _, req := range exec.requests {
		assert.Equal(t, "/tmp/ws/compiled", req.ReuseWorkspace)
	}
	assert.Equal(t, []string{"/tmp/ws/compiled"}, exec.cleaned)
}

func TestJudgeCompiledWorkspaceCleanedOnFailure(t *testing.T) {
	exec := &fakeExecutor{
		compile: sandbox.CompileResult{Success: true, Workspace: "/tmp/ws/compiled"},
		run: func(req sandbox.ExecRequest) sandbox.ExecResult {
			return sandbox.ExecResult{Success: false, Error: "boom", Kind: sandbox.FailureRuntime}
		},
	}
	o := newOrchestrator(exec, 5)

	o.Judge(context.Background(), api.Submission{
		Code: "x", Language: "CPP", TestCases: echoCases(2),
	})

	assert.Equal(t, []string{"/tmp/ws/compiled"}, exec.cleaned)
}

func TestJudgeConcurrencyBound(t *testing.T) {
	exec := &fakeExecutor{
		compile: sandbox.CompileResult{Success: true},
		delay:   20 * time.Millisecond,
		run:     echoInput,
	}
	o := newOrchestrator(exec, 5)

	res := o.Judge(context.Background(), api.Submission{
		Code: "x", Language: "PYTHON", TestCases: echoCases(20),
	})

	assert.Equal(t, 20, exec.executes)
	assert.Equal(t, 20, res.TestCasesPassed)
	assert.LessOrEqual(t, exec.maxInFlight.Load(), int32(5))
	assert.Greater(t, exec.maxInFlight.Load(), int32(1))
}

func TestJudgeResultsPreserveSubmissionOrder(t *testing.T) {
	exec := &fakeExecutor{
		compile: sandbox.CompileResult{Success: true},
		run: func(req sandbox.ExecRequest) sandbox.ExecResult {
			// Later cases finish first.
			if strings.HasPrefix(req.Input, "0") {
				time.Sleep(30 * time.Millisecond)
			}
			return echoInput(req)
		},
	}
	o := newOrchestrator(exec, 5)

	cases := echoCases(8)
	res := o.Judge(context.Background(), api.Submission{
		Code: "x", Language: "PYTHON", TestCases: cases,
	})

	require.Len(t, res.TestCaseResults, 8)
	for i, tcr := range res.TestCaseResults {
		assert.Equal(t, cases[i].Input, tcr.Input)
		assert.Equal(t, cases[i].Input, tcr.ActualOutput)
	}
}

func TestJudgePanickingCaseFolded(t *testing.T) {
	exec := &fakeExecutor{
		compile: sandbox.CompileResult{Success: true},
		run: func(req sandbox.ExecRequest) sandbox.ExecResult {
			if req.Input == "1" {
				panic("executor wedged")
			}
			return echoInput(req)
		},
	}
	o := newOrchestrator(exec, 5)

	res := o.Judge(context.Background(), api.Submission{
		Code: "x", Language: "PYTHON", TestCases: echoCases(3),
	})

	assert.Equal(t, api.StatusRuntimeError, res.Status)
	assert.Equal(t, 2, res.TestCasesPassed)
	require.Len(t, res.TestCaseResults, 3)
	assert.False(t, res.TestCaseResults[1].Passed)
	assert.Contains(t, res.TestCaseResults[1].Error, "executor wedged")
}

func TestJudgeUnknownLanguage(t *testing.T) {
	exec := &fakeExecutor{compile: sandbox.CompileResult{Success: true}, run: echoInput}
	o := newOrchestrator(exec, 5)

	res := o.Judge(context.Background(), api.Submission{
		Code: "x", Language: "MALBOLGE", TestCases: echoCases(2),
	})

	assert.Equal(t, api.StatusInternalError, res.Status)
	assert.Equal(t, 2, res.TotalTestCases)
	require.Len(t, res.TestCaseResults, 2)
	assert.Zero(t, exec.compiles)
}

func TestRunSequentialStopsAfterExecutionFailure(t *testing.T) {
	exec := &fakeExecutor{
		compile: sandbox.CompileResult{Success: true},
		run: func(req sandbox.ExecRequest) sandbox.ExecResult {
			switch req.Input {
			case "0":
				// Wrong answer: execution succeeded, output mismatched.
				return sandbox.ExecResult{Success: true, Output: "wrong"}
			case "1":
				return sandbox.ExecResult{Success: false, Error: "segfault", Kind: sandbox.FailureRuntime}
			default:
				return echoInput(req)
			}
		},
	}
	o := newOrchestrator(exec, 5)

	res := o.RunSequential(context.Background(), "x", "PYTHON", echoCases(4), 0, 0)

	// Case 0 is a wrong answer and does not stop the run; case 1 crashes
	// and does.
	assert.Equal(t, 2, exec.executes)
	assert.Equal(t, api.StatusRuntimeError, res.Status)
	assert.Equal(t, 4, res.TotalTestCases)
	require.Len(t, res.TestCaseResults, 4)
	assert.Contains(t, res.TestCaseResults[2].Error, "not run")
	assert.Contains(t, res.TestCaseResults[3].Error, "not run")
}

func TestRunSequentialAccepted(t *testing.T) {
	exec := &fakeExecutor{compile: sandbox.CompileResult{Success: true}, run: echoInput}
	o := newOrchestrator(exec, 5)

	res := o.RunSequential(context.Background(), "x", "PYTHON", echoCases(3), 2, 128)

	assert.Equal(t, api.StatusAccepted, res.Status)
	assert.Equal(t, 3, res.TestCasesPassed)
	for _, req := range exec.requests {
		assert.Equal(t, 2, req.TimeLimitSec)
		assert.Equal(t, 128, req.MemoryLimitMB)
	}
}

func TestJudgeInvariants(t *testing.T) {
	outcomes := []func(req sandbox.ExecRequest) sandbox.ExecResult{
		echoInput,
		func(sandbox.ExecRequest) sandbox.ExecResult {
			return sandbox.ExecResult{Success: false, Error: "crash", Kind: sandbox.FailureRuntime}
		},
		func(sandbox.ExecRequest) sandbox.ExecResult {
			return sandbox.ExecResult{Success: true, Output: "nope"}
		},
	}
	for i, run := range outcomes {
		exec := &fakeExecutor{compile: sandbox.CompileResult{Success: true}, run: run}
		o := newOrchestrator(exec, 3)

		res := o.Judge(context.Background(), api.Submission{
			Code: "x", Language: "PYTHON", TestCases: echoCases(6),
		})

		assert.LessOrEqual(t, res.TestCasesPassed, res.TotalTestCases, "outcome %d", i)
		assert.Equal(t, res.TotalTestCases, len(res.TestCaseResults), "outcome %d", i)
		if res.Status == api.StatusAccepted {
			assert.Equal(t, res.TotalTestCases, res.TestCasesPassed, "outcome %d", i)
		} else {
			assert.NotEqual(t, res.TotalTestCases, res.TestCasesPassed, "outcome %d", i)
		}
	}
}
