package browser

import (
	"math/rand/v2"
	"time"
)

// Pacing constants for human-like interaction. Every delay is drawn
// from a range; fixed intervals are a fingerprint.
const (
	hoverDelayMin = 300 * time.Millisecond
	hoverDelayMax = 1200 * time.Millisecond

	keyDelayMin = 50 * time.Millisecond
	keyDelayMax = 150 * time.Millisecond

	settleMin = 2 * time.Second
	settleMax = 6 * time.Second

	moveStepsMin = 8
	moveStepsMax = 16

	settleScrollMin = 100
	settleScrollMax = 300
)

// maxWaitSeconds clamps the explicit wait tool so the model cannot
// stall a turn indefinitely.
const maxWaitSeconds = 30

func randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}

func randInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.IntN(max-min+1)
}

// moveSteps returns intermediate pointer positions from (fx, fy) to
// (tx, ty) with slight jitter, simulating a hand-driven mouse.
func moveSteps(fx, fy, tx, ty float64) [][2]float64 {
	n := randInt(moveStepsMin, moveStepsMax)
	steps := make([][2]float64, 0, n)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		jx := (rand.Float64() - 0.5) * 3
		jy := (rand.Float64() - 0.5) * 3
		if i == n {
			jx, jy = 0, 0
		}
		steps = append(steps, [2]float64{
			fx + (tx-fx)*t + jx,
			fy + (ty-fy)*t + jy,
		})
	}
	return steps
}
