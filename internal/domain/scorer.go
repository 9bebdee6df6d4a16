package domain

import "math"

// Scorer maps two opaque subjects to a score. Implementations must be
// deterministic; callers clip the result to [0,1].
type Scorer interface {
	Name() string
	Score(a, b []byte) (float64, error)
}

func ClipScore(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
