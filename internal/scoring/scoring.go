// Package scoring computes the points awarded for a single answer.
package scoring

import (
	"math"
	"time"
)

// Points computes the score for one answer from correctness and
// response latency. Wrong answers earn nothing. A correct answer
// earns a share of maxPoints proportional to the time remaining in
// the question window, clamped up to minPoints so a slow but correct
// answer is still rewarded. An answer arriving at or after the window
// closes earns nothing even if it was accepted.
func Points(correct bool, questionStart, submittedAt time.Time, limit time.Duration, maxPoints, minPoints int) int {
	if !correct {
		return 0
	}

	remaining := limit - submittedAt.Sub(questionStart)
	if remaining <= 0 {
		return 0
	}

	points := int(math.Round(float64(maxPoints) * float64(remaining) / float64(limit)))
	if points < minPoints {
		points = minPoints
	}

	return points
}
