package waitqueue

import "github.com/voicelayer/switchboard/internal/types"

// SLTracker tracks service level counters for one team's queue
type SLTracker struct {
	ThresholdSecs int // threshold in seconds (e.g., 20)
	AnsweredInSL  int // calls assigned within threshold
	TotalAnswered int // total calls assigned
}

// NewSLTracker creates a new SL tracker with the given threshold
func NewSLTracker(thresholdSecs int) *SLTracker {
	return &SLTracker{
		ThresholdSecs: thresholdSecs,
	}
}

// RecordAnswer records a call being assigned to an agent
func (s *SLTracker) RecordAnswer(waitTimeSecs float64) {
	s.TotalAnswered++
	if waitTimeSecs <= float64(s.ThresholdSecs) {
		s.AnsweredInSL++
	}
}

// CurrentSL returns the current service level percentage
func (s *SLTracker) CurrentSL() float64 {
	if s.TotalAnswered == 0 {
		return 100.0 // No calls assigned yet, SL is 100%
	}
	return float64(s.AnsweredInSL) / float64(s.TotalAnswered) * 100.0
}

// Snapshot returns a ServiceLevel snapshot
func (s *SLTracker) Snapshot() types.ServiceLevel {
	return types.ServiceLevel{
		ThresholdSecs: s.ThresholdSecs,
		AnsweredInSL:  s.AnsweredInSL,
		TotalAnswered: s.TotalAnswered,
		CurrentSL:     s.CurrentSL(),
	}
}
