package app

import "math"

// scoreFloor guarantees any correct answer is worth something, even right at
// the time limit.
const scoreFloor = 100

// Score computes the points for a submitted answer from correctness and
// elapsed time. Incorrect answers score zero. Correct answers scale linearly
// from 1000 (instant) down to the floor at the limit. TimeTakenMs is clamped
// to [0, durationSeconds*1000] so clock skew can never push a score past 1000.
func Score(correct bool, timeTakenMs, durationSeconds int) int {
	if !correct {
		return 0
	}
	limitMs := durationSeconds * 1000
	if limitMs <= 0 {
		return scoreFloor
	}
	if timeTakenMs < 0 {
		timeTakenMs = 0
	}
	if timeTakenMs > limitMs {
		timeTakenMs = limitMs
	}
	raw := int(math.Round(1000 * (1 - float64(timeTakenMs)/float64(limitMs))))
	if raw < scoreFloor {
		return scoreFloor
	}
	return raw
}
