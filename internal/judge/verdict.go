package judge

import (
	"github.com/codemonster/judge/api"
	"github.com/codemonster/judge/internal/sandbox"
)

// verdictFor picks the submission verdict from the per-case failure tags.
// Resource and crash signals outrank a bare mismatch: TLE > MLE > RE > WA.
// A per-case infrastructure failure counts as a runtime-class failure; the
// case already carries the descriptive error text.
func verdictFor(kinds []sandbox.FailureKind, allPassed bool) string {
	if allPassed {
		return api.StatusAccepted
	}
	var hasTimeout, hasMemory, hasRuntime bool
	for _, k := range kinds {
		switch k {
		case sandbox.FailureTimeout:
			hasTimeout = true
		case sandbox.FailureMemory:
			hasMemory = true
		case sandbox.FailureRuntime, sandbox.FailureInfra:
			hasRuntime = true
		}
	}
	switch {
	case hasTimeout:
		return api.StatusTimeLimitExceeded
	case hasMemory:
		return api.StatusMemoryLimitExceeded
	case hasRuntime:
		return api.StatusRuntimeError
	}
	return api.StatusWrongAnswer
}
