package timer

import "time"

// Clock provides the current wall time for timer accounting
type Clock func() time.Time

// SystemClock returns the process wall clock
func SystemClock() Clock {
	return time.Now
}
