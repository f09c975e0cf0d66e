package adapter

import "time"

// Clock is the time source of the chains, watchers and emitters
//
//go:generate mockgen -source=clock.go -destination=../mocks/clock.go -package=mocks -mock_names=Clock=MockClock
type Clock interface {
	// Now stamps new blocks and cursor saves
	Now() time.Time
	Since(t time.Time) time.Duration
	// After paces the polling loops
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

// NewClock returns the system clock
func NewClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
