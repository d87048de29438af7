package probe

import (
	"math"
	"time"
)

// TicRate is the game's simulation rate in tics per second.
const TicRate = 35

// Tics converts a round-trip time to game tics: round(ms / 1000 * 35),
// with halves rounded up.
func Tics(rtt time.Duration) int {
	ms := rtt.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(math.Floor(float64(ms)/1000*TicRate + 0.5))
}
