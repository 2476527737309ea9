package sandbox

import (
	"encoding/json"
	"strings"
)

// ResultMarker delimits the structured result record in the sandbox
// entrypoint's stdout. Everything before the last marker line is
// diagnostic text and is discarded; the remainder must be one JSON record.
const ResultMarker = "__JUDGE_RESULT__"

type resultPayload struct {
	Success bool    `json:"success"`
	Output  string  `json:"output"`
	Error   *string `json:"error"`

	RuntimeMillis int64 `json:"runtime_ms"`
	MemoryKB      int64 `json:"memory_kb"`
}

// parseResultPayload extracts the entrypoint's structured record from the
// captured stdout. ok is false when no marker is present or the record
// does not parse; callers then fall back to exit-code semantics.
func parseResultPayload(stdout string) (payload resultPayload, ok bool) {
	idx := strings.LastIndex(stdout, ResultMarker)
	if idx < 0 {
		return resultPayload{}, false
	}
	record := stdout[idx+len(ResultMarker):]
	record = strings.TrimSpace(record)
	if err := json.Unmarshal([]byte(record), &payload); err != nil {
		return resultPayload{}, false
	}
	return payload, true
}
