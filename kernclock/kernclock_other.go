//go:build windows
// +build windows

package kernclock

import "time"

// Monotonic backs Clock with time.Now()'s monotonic reading on platforms
// without unix.ClockGettime, scaled to ticks by TickHz.
type Monotonic struct {
	TickHz uint64
	start  time.Time
}

// NewMonotonic returns a stdlib-backed Clock ticking at tickHz per
// second. onDeadline is accepted for API parity with the unix build but
// unused: ProgramDeadline is a no-op here.
func NewMonotonic(tickHz uint64, onDeadline func()) *Monotonic {
	_ = onDeadline
	return &Monotonic{TickHz: tickHz, start: time.Now()}
}

func (m *Monotonic) Now() Ticks {
	return Ticks(uint64(time.Since(m.start)) * m.TickHz / uint64(time.Second))
}

func (m *Monotonic) ProgramDeadline(Ticks) {}
