package reservation

import "time"

// Clock supplies the current time to the engine.  Expiry decisions are
// all relative to Clock.Now, so tests can move time forward instead of
// sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
