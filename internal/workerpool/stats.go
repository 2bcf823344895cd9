package workerpool

import "time"

// clientStats accumulates request accounting for one pool. Guarded by the
// owning pool's mutex; concurrent releases from the same pool would
// otherwise lose updates.
type clientStats struct {
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	totalRequestTime   time.Duration
	lastError          string
	lastErrorAt        time.Time
}

// StatsSnapshot is the externally visible copy of a pool's statistics.
type StatsSnapshot struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	FailedRequests     int64         `json:"failed_requests"`
	AverageRequestTime time.Duration `json:"average_request_time"`
	SuccessRate        float64       `json:"success_rate"`
	LastError          string        `json:"last_error,omitempty"`
	LastErrorAt        time.Time     `json:"last_error_time,omitempty"`
}

// record accounts for one request attempt.
func (s *clientStats) record(duration time.Duration, err error) {
	s.totalRequests++
	s.totalRequestTime += duration
	if err != nil {
		s.failedRequests++
		s.lastError = err.Error()
		s.lastErrorAt = time.Now()
		return
	}
	s.successfulRequests++
}

// snapshot derives the reportable view. Success rate is 100% before any
// request has been made.
func (s *clientStats) snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		TotalRequests:      s.totalRequests,
		SuccessfulRequests: s.successfulRequests,
		FailedRequests:     s.failedRequests,
		SuccessRate:        100,
		LastError:          s.lastError,
		LastErrorAt:        s.lastErrorAt,
	}
	if s.totalRequests > 0 {
		snap.AverageRequestTime = s.totalRequestTime / time.Duration(s.totalRequests)
		snap.SuccessRate = float64(s.successfulRequests) / float64(s.totalRequests) * 100
	}
	return snap
}
