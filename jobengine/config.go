package jobengine

import "time"

// Config holds per-job engine limits.
type Config struct {
	// MaxTurns is the maximum number of model turns per job. 0 uses the
	// default.
	MaxTurns int `json:"max_turns"`

	// WallClock is the per-job wall-clock budget measured from submission.
	// 0 uses the default. Exceeding it fails the job with a budget-exceeded
	// reason, distinct from cancellation.
	WallClock time.Duration `json:"wall_clock"`

	// Model overrides the backend's default model when non-empty.
	Model string `json:"model,omitempty"`

	// LoopDetectionWindow is the number of recent tool calls inspected for
	// repeating patterns. 0 disables loop detection.
	LoopDetectionWindow int `json:"loop_detection_window"`

	// ToolOutputLimits and ToolLineLimits override the per-tool truncation
	// applied to tool output before it is fed back to the model. The
	// transcript always keeps the full untruncated output.
	ToolOutputLimits map[string]int `json:"tool_output_limits,omitempty"`
	ToolLineLimits   map[string]int `json:"tool_line_limits,omitempty"`
}

// DefaultConfig returns the default engine limits.
func DefaultConfig() Config {
	return Config{
		MaxTurns:            50,
		WallClock:           30 * time.Minute,
		LoopDetectionWindow: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTurns <= 0 {
		c.MaxTurns = d.MaxTurns
	}
	if c.WallClock <= 0 {
		c.WallClock = d.WallClock
	}
	return c
}
