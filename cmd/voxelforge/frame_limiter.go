package main

import (
	"time"
)

// frameLimiter paces the main loop with a hybrid sleep/spin wait for better
// precision than a plain time.Sleep on high frame caps.
type frameLimiter struct {
	target time.Duration
	next   time.Time
}

func newFrameLimiter(fps int) *frameLimiter {
	if fps <= 0 {
		fps = 60
	}
	return &frameLimiter{target: time.Second / time.Duration(fps)}
}

func (f *frameLimiter) wait() {
	if f.next.IsZero() {
		f.next = time.Now().Add(f.target)
	} else {
		f.next = f.next.Add(f.target)
	}

	for {
		remaining := time.Until(f.next)
		if remaining <= 0 {
			break
		}
		if remaining > 200*time.Microsecond {
			time.Sleep(remaining - 200*time.Microsecond)
		}
	}

	// Resync after a hitch to avoid drift.
	if late := -time.Until(f.next); late > f.target {
		f.next = time.Now().Add(f.target)
	}
}
