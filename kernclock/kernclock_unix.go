//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly
// +build linux darwin freebsd openbsd netbsd dragonfly

package kernclock

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Monotonic backs Clock with unix.ClockGettime(CLOCK_MONOTONIC), scaled
// to ticks by TickHz. ProgramDeadline starts (or replaces) a one-shot
// timer.Timer that calls onDeadline when the deadline ticks elapse.
type Monotonic struct {
	TickHz     uint64 // ticks per second; 1000 means one tick per millisecond
	onDeadline func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewMonotonic returns a unix-backed Clock ticking at tickHz per second,
// invoking onDeadline (which may be nil) from its own goroutine each time
// a programmed deadline elapses.
func NewMonotonic(tickHz uint64, onDeadline func()) *Monotonic {
	return &Monotonic{TickHz: tickHz, onDeadline: onDeadline}
}

func (m *Monotonic) Now() Ticks {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	ns := ts.Sec*int64(time.Second) + int64(ts.Nsec)
	return Ticks(uint64(ns) * m.TickHz / uint64(time.Second))
}

func (m *Monotonic) ProgramDeadline(deadline Ticks) {
	now := m.Now()
	var d time.Duration
	if deadline > now {
		d = time.Duration((deadline - now) * uint64(time.Second) / m.TickHz)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	if m.onDeadline == nil {
		return
	}
	m.timer = time.AfterFunc(d, m.onDeadline)
}
