package dataset

import (
	"math"

	"go.uber.org/zap"

	"linfit/sgd"
)

// CleanStats reports what Clean kept and dropped.
type CleanStats struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Rejected int `json:"rejected"`
}

// Clean returns a copy of data with non-finite rows removed. The input is
// left untouched.
func Clean(data []sgd.Observation) ([]sgd.Observation, CleanStats) {
	stats := CleanStats{Total: len(data)}
	cleaned := make([]sgd.Observation, 0, len(data))
	for _, obs := range data {
		if !isFinite(obs.X) || !isFinite(obs.Y) {
			stats.Rejected++
			continue
		}
		cleaned = append(cleaned, obs)
	}
	stats.Passed = len(cleaned)
	if stats.Rejected > 0 {
		zap.S().Warnf("dropped %d of %d observations with non-finite values", stats.Rejected, stats.Total)
	}
	return cleaned, stats
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
