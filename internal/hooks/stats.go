package hooks

import "time"

// ExecutionStats aggregates outcomes for one registry key. Counters are
// monotonic for the life of the process; the average is maintained
// incrementally, never recomputed by replay.
type ExecutionStats struct {
	Key                  string        `json:"key"`
	TotalExecutions      uint64        `json:"total_executions"`
	SuccessfulExecutions uint64        `json:"successful_executions"`
	FailedExecutions     uint64        `json:"failed_executions"`
	BlockedExecutions    uint64        `json:"blocked_executions"`
	AverageDuration      time.Duration `json:"average_duration"`
	LastExecution        time.Time     `json:"last_execution"`
}

// record folds one result in. Callers hold the registry stats lock.
func (s *ExecutionStats) record(event HookEvent, r Result) {
	s.TotalExecutions++
	if r.Success {
		s.SuccessfulExecutions++
	} else {
		s.FailedExecutions++
	}
	if r.Blocking(event) {
		s.BlockedExecutions++
	}

	// Incremental mean: avg += (x - avg) / n
	n := time.Duration(s.TotalExecutions)
	s.AverageDuration += (r.Meta.Duration - s.AverageDuration) / n
	s.LastExecution = r.Meta.Timestamp
}
