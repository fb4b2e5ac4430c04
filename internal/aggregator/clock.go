package aggregator

import "time"

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
