package judge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/codemonster/judge/api"
	"github.com/codemonster/judge/internal/langs"
	"github.com/codemonster/judge/internal/sandbox"
)

const DefaultCaseConcurrency = 5

// Executor is the slice of the sandbox the orchestrator needs.
// *sandbox.Executor satisfies it; tests substitute counting fakes.
type Executor interface {
	Execute(ctx context.Context, req sandbox.ExecRequest) sandbox.ExecResult
	Compile(ctx context.Context, code, languageID string) sandbox.CompileResult
	CleanupWorkspace(ref string)
}

// Orchestrator turns one submission into one verdict: compile once, fan
// test cases out under a bounded concurrency limit, compare outputs,
// aggregate.
type Orchestrator struct {
	exec     Executor
	registry *langs.Registry
	limit    int64
	logger   *slog.Logger
}

func NewOrchestrator(exec Executor, registry *langs.Registry, caseConcurrency int, logger *slog.Logger) *Orchestrator {
	if caseConcurrency <= 0 {
		caseConcurrency = DefaultCaseConcurrency
	}
	return &Orchestrator{
		exec:     exec,
		registry: registry,
		limit:    int64(caseConcurrency),
		logger:   logger,
	}
}

// Judge runs every test case of the submission, concurrently up to the
// case limit, and aggregates the verdict. It always runs all cases — no
// short-circuit on the first failure — so the per-case result list is
// deterministic; only the synchronous ad-hoc path (RunSequential) stops
// early. Judge never returns an error: every failure mode folds into a
// terminal JudgeResult.
func (o *Orchestrator) Judge(ctx context.Context, sub api.Submission) (result api.JudgeResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("judging panicked", "submission", sub.SubmissionID, "panic", r)
			result = internalResult(sub.TestCases, fmt.Sprintf("internal judging error: %v", r))
		}
	}()

	if _, err := o.registry.Resolve(sub.Language); err != nil {
		return internalResult(sub.TestCases, err.Error())
	}

	comp := o.exec.Compile(ctx, sub.Code, sub.Language)
	if !comp.Success {
		return compilationResult(sub.TestCases, comp.Error)
	}
	if comp.Workspace != "" {
		defer o.exec.CleanupWorkspace(comp.Workspace)
	}

	n := len(sub.TestCases)
	results := make([]api.TestCaseResult, n)
	kinds := make([]sandbox.FailureKind, n)

	sem := semaphore.NewWeighted(o.limit)
	var wg sync.WaitGroup
	for i, tc := range sub.TestCases {
		wg.Add(1)
		go func(i int, tc api.TestCase) {
			defer wg.Done()
			defer func() {
				// A panicking case becomes a failing case, never a
				// propagated panic.
				if r := recover(); r != nil {
					o.logger.Error("test case panicked", "submission", sub.SubmissionID, "case", i, "panic", r)
					results[i] = syntheticFailure(tc, fmt.Sprintf("internal execution error: %v", r))
					kinds[i] = sandbox.FailureInfra
				}
			}()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = syntheticFailure(tc, fmt.Sprintf("execution aborted: %v", err))
				kinds[i] = sandbox.FailureInfra
				return
			}
			defer sem.Release(1)

			res := o.exec.Execute(ctx, sandbox.ExecRequest{
				Code:           sub.Code,
				LanguageID:     sub.Language,
				Input:          tc.Input,
				TimeLimitSec:   sub.TimeLimitSec,
				MemoryLimitMB:  sub.MemoryLimitMB,
				ReuseWorkspace: comp.Workspace,
			})
			results[i], kinds[i] = caseOutcome(tc, res)
		}(i, tc)
	}
	wg.Wait()

	return aggregate(results, kinds)
}

// RunSequential is the ad-hoc "Run" path: cases execute one at a time and
// the loop stops at the first execution failure (timeout, crash, infra),
// since later cases cannot change the verdict. A plain wrong answer does
// not stop the loop. Skipped cases still appear in the result list, marked
// as not run.
func (o *Orchestrator) RunSequential(ctx context.Context, code, language string, cases []api.TestCase, timeLimitSec, memLimitMB int) (result api.JudgeResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("ad-hoc run panicked", "panic", r)
			result = internalResult(cases, fmt.Sprintf("internal judging error: %v", r))
		}
	}()

	if _, err := o.registry.Resolve(language); err != nil {
		return internalResult(cases, err.Error())
	}

	comp := o.exec.Compile(ctx, code, language)
	if !comp.Success {
		return compilationResult(cases, comp.Error)
	}
	if comp.Workspace != "" {
		defer o.exec.CleanupWorkspace(comp.Workspace)
	}

	n := len(cases)
	results := make([]api.TestCaseResult, n)
	kinds := make([]sandbox.FailureKind, n)

	for i, tc := range cases {
		res := o.exec.Execute(ctx, sandbox.ExecRequest{
			Code:           code,
			LanguageID:     language,
			Input:          tc.Input,
			TimeLimitSec:   timeLimitSec,
			MemoryLimitMB:  memLimitMB,
			ReuseWorkspace: comp.Workspace,
		})
		results[i], kinds[i] = caseOutcome(tc, res)
		if !res.Success {
			for j := i + 1; j < n; j++ {
				results[j] = syntheticFailure(cases[j], "not run: stopped after earlier failure")
			}
			break
		}
	}

	return aggregate(results, kinds)
}

func caseOutcome(tc api.TestCase, res sandbox.ExecResult) (api.TestCaseResult, sandbox.FailureKind) {
	passed := res.Success && OutputsMatch(tc.Output, res.Output)
	out := api.TestCaseResult{
		Input:          tc.Input,
		ExpectedOutput: tc.Output,
		ActualOutput:   res.Output,
		Passed:         passed,
		Runtime:        res.RuntimeMillis,
		MemoryUsage:    res.MemoryMB,
		Error:          res.Error,
	}
	if passed {
		return out, sandbox.FailureNone
	}
	return out, res.Kind
}

func aggregate(results []api.TestCaseResult, kinds []sandbox.FailureKind) api.JudgeResult {
	var passed int
	var totalRuntime, maxMemory int64
	for _, r := range results {
		if r.Passed {
			passed++
		}
		totalRuntime += r.Runtime
		if r.MemoryUsage > maxMemory {
			maxMemory = r.MemoryUsage
		}
	}
	return api.JudgeResult{
		Status:          verdictFor(kinds, passed == len(results)),
		TestCasesPassed: passed,
		TotalTestCases:  len(results),
		TestCaseResults: results,
		TotalRuntime:    totalRuntime,
		MaxMemoryUsage:  maxMemory,
	}
}

func syntheticFailure(tc api.TestCase, msg string) api.TestCaseResult {
	return api.TestCaseResult{
		Input:          tc.Input,
		ExpectedOutput: tc.Output,
		Passed:         false,
		Error:          msg,
	}
}

func syntheticFailures(cases []api.TestCase, msg string) []api.TestCaseResult {
	out := make([]api.TestCaseResult, len(cases))
	for i, tc := range cases {
		out[i] = syntheticFailure(tc, msg)
	}
	return out
}

// compilationResult is the terminal verdict when the compile phase fails:
// no test case runs, but every case still gets a (failing) entry so the
// result list always matches the submitted case count.
func compilationResult(cases []api.TestCase, errText string) api.JudgeResult {
	return api.JudgeResult{
		Status:          api.StatusCompilationError,
		TotalTestCases:  len(cases),
		TestCaseResults: syntheticFailures(cases, errText),
		ErrorMessage:    errText,
	}
}

func internalResult(cases []api.TestCase, errText string) api.JudgeResult {
	return api.JudgeResult{
		Status:          api.StatusInternalError,
		TotalTestCases:  len(cases),
		TestCaseResults: syntheticFailures(cases, errText),
		ErrorMessage:    errText,
	}
}
