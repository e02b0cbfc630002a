package ai

// Metrics is a point-in-time view of the scheduler's performance
// counters. Every degraded outcome the core can experience shows up here
// rather than as an error: slow calculations in Timeouts, recovered
// failures and malformed input in Fallbacks, blown frames in
// FrameOverruns, controller activity in AdaptiveAdjustments.
type Metrics struct {
	TotalCalculations    uint64  `json:"totalCalculations"`
	AverageCalculationMs float64 `json:"averageCalculationMs"`
	QueueSize            int     `json:"queueSize"`
	Timeouts             uint64  `json:"timeouts"`
	Fallbacks            uint64  `json:"fallbacks"`
	FrameOverruns        uint64  `json:"frameOverruns"`
	AdaptiveAdjustments  uint64  `json:"adaptiveAdjustments"`
}
