package domain

import "time"

// RequestMetrics is a point-in-time snapshot of upstream client counters.
// The live counters are owned by the client and reset only on restart.
type RequestMetrics struct {
	Total      uint64
	Succeeded  uint64
	Failed     uint64
	AvgLatency time.Duration
}

// SuccessRate in percent, 0 when no requests were made yet.
func (m RequestMetrics) SuccessRate() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Succeeded) / float64(m.Total) * 100
}
