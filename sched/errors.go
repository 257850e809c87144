package sched

import (
	"errors"
	"fmt"
)

var errEmptyDomainSchedule = errors.New("sched: domain schedule must have at least one entry")

func errZeroLengthDomain(i int) error {
	return fmt.Errorf("sched: domain schedule entry %d has zero length", i)
}

// ErrNotSchedulable is returned when an operation requires a thread to be
// placeable in a ready queue (Runnable, and under MCS holding a
// refill-ready-and-sufficient scheduling context) but it is not.
var ErrNotSchedulable = errors.New("sched: thread is not schedulable")
