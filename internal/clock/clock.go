package clock

import "time"

// Clock abstracts "now" so window presets resolve deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystem returns the wall clock, always in UTC.
func NewSystem() Clock { return systemClock{} }
