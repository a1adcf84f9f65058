// Package simulate generates synthetic checkpoint history and drives the
// train-then-predict loop end to end, either in process or against a
// running server.
package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Running server to drive; empty runs in process
	Start      time.Time     // First synthetic observation
	Days       int           // Days of history to generate
	Step       time.Duration // Spacing of status observations per checkpoint
	Noise      float64       // Probability an observation disagrees with the pattern
	SignalRate float64       // Mean social signals per checkpoint per hour
	Seed       int64         // Generator seed
	ModelDir   string        // Artifact directory for in-process runs
	Timeout    time.Duration // HTTP request timeout
	Workers    int           // Concurrent uploads in remote runs
	OutputFile string        // Optional JSON-lines dump of the generated history
	Verbose    bool          // Log every prediction
}

// DefaultConfig returns a 21-day hourly history starting three weeks ago.
func DefaultConfig() Config {
	return Config{
		Start:      time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -21),
		Days:       21,
		Step:       time.Hour,
		Noise:      0.05,
		SignalRate: 0.5,
		Seed:       1,
		ModelDir:   "models",
		Timeout:    30 * time.Second,
		Workers:    8,
	}
}

// End is the exclusive end of the generated history.
func (c Config) End() time.Time {
	return c.Start.AddDate(0, 0, c.Days)
}

// Stats holds generation and verification counters.
type Stats struct {
	Checkpoints      int
	Observations     int
	Signals          int
	UnmatchedSignals int
	Predictions      int
	ShortHits        int
	LongHits         int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}

// ShortAccuracy is the share of 2h predictions that matched the pattern.
func (s Stats) ShortAccuracy() float64 { return ratio(s.ShortHits, s.Predictions) }

// LongAccuracy is the share of 18h predictions that matched the pattern.
func (s Stats) LongAccuracy() float64 { return ratio(s.LongHits, s.Predictions) }

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
