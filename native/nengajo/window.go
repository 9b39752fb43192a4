package nengajo

import (
	"fmt"
	"time"
)

// Window is the inclusive interval, in unix seconds, during which minting is
// open when the admin override is off. It never changes after construction.
type Window struct {
	OpenAt  int64
	CloseAt int64
}

// NewWindow validates the ordering of the bounds.
func NewWindow(openAt, closeAt int64) (Window, error) {
	if openAt > closeAt {
		return Window{}, fmt.Errorf("%w: %d > %d", ErrInvalidWindow, openAt, closeAt)
	}
	return Window{OpenAt: openAt, CloseAt: closeAt}, nil
}

// RemainingUntilOpen returns max(openAt-now, 0).
func (w Window) RemainingUntilOpen(now int64) time.Duration {
	return remaining(w.OpenAt, now)
}

// RemainingUntilClose returns max(closeAt-now, 0).
func (w Window) RemainingUntilClose(now int64) time.Duration {
	return remaining(w.CloseAt, now)
}

// Contains reports openAt <= now <= closeAt.
func (w Window) Contains(now int64) bool {
	return w.OpenAt <= now && now <= w.CloseAt
}

func remaining(target, now int64) time.Duration {
	if now >= target {
		return 0
	}
	return time.Duration(target-now) * time.Second
}
