package engine

import "math"

const soloBaseScore = 1000

// SoloScore is the single-player score for a finished game. Duel rooms do not
// use it; they award Rules.ScoreIncrement per solved keyword.
func SoloScore(tries, maxTries int, won bool) int {
	if maxTries <= 0 {
		return 0
	}
	var score float64
	if won {
		score = soloBaseScore * float64(maxTries-tries+1) / float64(maxTries)
	} else {
		score = soloBaseScore * 0.3 * (1 - float64(tries)/float64(maxTries))
	}
	if score < 0 {
		return 0
	}
	return int(math.Floor(score + 0.5))
}
