package application

import "time"

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T. Handy in tests and replays.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// Millis returns the clock's time as unix milliseconds, the unit stored in history and chat.
func Millis(c Clock) int64 {
	if c == nil {
		c = SystemClock{}
	}
	return c.Now().UnixMilli()
}
