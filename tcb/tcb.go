// Package tcb implements the thread control block: its fixed
// fields, its intrusive queue link storage, and the TCB-local operations
// that don't require scheduler-wide bookkeeping (register/MR access, IPC
// buffer lookup, fault-MR setup). Priority/domain/affinity changes and
// queue placement decisions live in package sched, which owns the ready
// queues and bitmap this package's TCBs are placed into.
package tcb

import (
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sel4kernel/taskcore/archregs"
	"github.com/sel4kernel/taskcore/internal/kassert"
	"github.com/sel4kernel/taskcore/tcbqueue"
	"github.com/sel4kernel/taskcore/tstate"
)

// Handle is a stable identifier for a TCB within its Arena.
type Handle = tcbqueue.Handle

// NoHandle is the "no TCB" sentinel, used for bound_notification,
// fault_handler and similar optional references.
const NoHandle = tcbqueue.NoHandle

// SCHandle is an opaque reference to a scheduling context (package mcs).
// It is declared here, not in mcs, so that this package has no import
// dependency on the MCS extension.
type SCHandle int32

// NoSC means "no scheduling context bound".
const NoSC SCHandle = -1

// FaultKind enumerates the sum-type tag for a thread's last fault.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultCapability
	FaultVMFault
	FaultUnknownSyscall
	FaultUserException
	FaultTimeout
)

// Fault is the last fault record for a thread. Only the fields relevant
// to FaultKind are meaningful; copy_fault_mrs uses Kind to
// select which fields to marshal into message registers.
type Fault struct {
	Kind          FaultKind
	IP            uint64
	Address       uint64
	SyscallNumber uint64
	ExceptionCode uint64
	VMFSR         uint64
}

// LookupFailure is the sum-type record produced when a capability lookup
// fails, e.g. while resolving an IPC buffer's extra-caps.
type LookupFailure struct {
	Cptr           uint64
	InReceivePhase bool
	Reason         string
}

// IPCBuffer describes the resolved location of a thread's IPC buffer, the
// result of lookup_ipc_buffer. Capability lookup is an external
// collaborator (CSpace); LookupIPCBuffer checks the frame's VM rights
// and records the result here.
type IPCBuffer struct {
	Valid    bool
	Base     uint64
	Writable bool
}

// TCB is the thread control block.
type TCB struct {
	debugID string

	Regs  archregs.File
	State tstate.State
	Flags tstate.Flags

	BoundNotification uint64 // 0 = none

	Fault         Fault
	LookupFailure *LookupFailure

	Domain   int
	MCP      int
	Priority int

	SchedContext SCHandle
	YieldTo      SCHandle // MCS: the (other) scheduling context this thread is voluntarily lent
	TimeSlice    int      // non-MCS round-robin budget

	FaultHandler uint64
	IPCBuffer    IPCBuffer

	Affinity int // SMP: owning CPU

	HasFPUState bool // true once this thread has trapped into FPU ownership at least once

	schedLinks tcbqueue.Links // ready-queue membership
	epLinks    tcbqueue.Links // IPC endpoint/notification queue membership

	ipcMsgs []uint64 // simulated IPC-buffer-resident message tail, see setIPCBufferMsg
}

// DebugID returns a short, human-loggable identifier distinct from the
// TCB's arena Handle, which is the real identity. Handy for log lines and
// Prometheus label values.
func (t *TCB) DebugID() string { return t.debugID }

// Arena owns a growable, append-only set of TCBs, addressed by
// stable Handles.
type Arena struct {
	tcbs []TCB
}

// NewArena returns an empty TCB arena.
func NewArena() *Arena {
	return &Arena{}
}

// New allocates a zero-initialized TCB and returns its handle.
func (a *Arena) New() Handle {
	a.tcbs = append(a.tcbs, TCB{
		debugID:      xid.New().String(),
		State:        tstate.Inactive,
		SchedContext: NoSC,
		YieldTo:      NoSC,
		schedLinks:   tcbqueue.Links{Prev: NoHandle, Next: NoHandle},
		epLinks:      tcbqueue.Links{Prev: NoHandle, Next: NoHandle},
	})
	return Handle(len(a.tcbs) - 1)
}

// Get returns the TCB for h. Panics (like any other address-as-identity
// access on a source address outside the kernel image) if h is
// out of range.
func (a *Arena) Get(h Handle) *TCB {
	kassert.Invariant(h >= 0 && int(h) < len(a.tcbs), "tcb: handle %d out of range (len=%d)", h, len(a.tcbs))
	return &a.tcbs[h]
}

// SchedAccessor adapts an Arena to tcbqueue.LinkAccessor over the
// sched_prev/next link pair used by the per-CPU ready queues. The MCS
// release queue links scheduling contexts, not TCBs, and does not use it.
type SchedAccessor struct{ A *Arena }

func (s SchedAccessor) Links(h Handle) *tcbqueue.Links { return &s.A.tcbs[h].schedLinks }

// EPAccessor adapts an Arena to tcbqueue.LinkAccessor (and
// PriorityAccessor, for the MCS priority-ordered insert) over the
// ep_prev/next link pair used by IPC endpoint/notification queues.
type EPAccessor struct{ A *Arena }

func (e EPAccessor) Links(h Handle) *tcbqueue.Links { return &e.A.tcbs[h].epLinks }
func (e EPAccessor) Priority(h Handle) int          { return e.A.tcbs[h].Priority }

var (
	// ErrPriorityExceedsAuthority is returned by SetMCPriority when the
	// requested priority exceeds the authorizing thread's own mcp.
	ErrPriorityExceedsAuthority = errors.New("tcb: requested priority exceeds authorizing thread's mcp")
	// ErrIPCBufferInvalid is returned when a thread has no valid,
	// sufficiently-permissioned IPC buffer mapped.
	ErrIPCBufferInvalid = errors.New("tcb: no valid IPC buffer")
)

// SetMCPriority implements the priority-authority check: authority may
// only grant mcp up to its own mcp.
func (a *Arena) SetMCPriority(authority Handle, target Handle, mcp int) error {
	auth := a.Get(authority)
	if mcp > auth.MCP {
		return fmt.Errorf("%w: authority mcp=%d requested=%d", ErrPriorityExceedsAuthority, auth.MCP, mcp)
	}
	a.Get(target).MCP = mcp
	return nil
}

// SetMR writes message register offset: through the
// architectural register file if offset < msgRegisterNum, otherwise
// through the IPC buffer if one is mapped and writable. Returns the next
// offset to write, capped at MsgRegisterNum once the architectural
// registers are exhausted and no IPC buffer is available (matching the
// "returns offset+1 or msgRegisterNum on fallthrough" contract).
func (t *TCB) SetMR(offset int, value uint64) int {
	if offset < archregs.MsgRegisterNum {
		t.Regs.SetMsg(offset, value)
		return offset + 1
	}
	if t.IPCBuffer.Valid && t.IPCBuffer.Writable {
		// The IPC buffer's message slots start after its header; modeled
		// here as a logical message array indexed from 0, matching the
		// architectural register numbering scheme.
		t.setIPCBufferMsg(offset, value)
		return offset + 1
	}
	return archregs.MsgRegisterNum
}

// setIPCBufferMsg writes into ipcMsgs, a placeholder for the IPC-buffer-resident tail of the
// message array once the architectural registers are exhausted. Real IPC
// buffer contents live in a mapped page owned by the external IPC-buffer
// collaborator; the core only needs to know it can write
// there, which this in-memory slice stands in for in tests/simulation.
func (t *TCB) setIPCBufferMsg(offset int, value uint64) {
	idx := offset - archregs.MsgRegisterNum
	if idx >= len(t.ipcMsgs) {
		grown := make([]uint64, idx+1)
		copy(grown, t.ipcMsgs)
		t.ipcMsgs = grown
	}
	t.ipcMsgs[idx] = value
}

// CopyMRs copies length message registers from src to dst: the first
// min(length, MsgRegisterNum) through the architectural registers, the
// remainder through the IPC buffer if one is mapped on the destination.
func CopyMRs(src, dst *TCB, length int) {
	n := length
	if n > archregs.MsgRegisterNum {
		n = archregs.MsgRegisterNum
	}
	for i := 0; i < n; i++ {
		dst.Regs.SetMsg(i, src.Regs.Msg(i))
	}
	if length <= archregs.MsgRegisterNum || !dst.IPCBuffer.Valid {
		return
	}
	for i := archregs.MsgRegisterNum; i < length; i++ {
		dst.setIPCBufferMsg(i, src.msgAt(i))
	}
}

func (t *TCB) msgAt(offset int) uint64 {
	if offset < archregs.MsgRegisterNum {
		return t.Regs.Msg(offset)
	}
	idx := offset - archregs.MsgRegisterNum
	if idx < len(t.ipcMsgs) {
		return t.ipcMsgs[idx]
	}
	return 0
}

// SetFaultMRs marshals t.Fault into message registers according to its
// Kind. Returns the number of registers written.
func (t *TCB) SetFaultMRs() int {
	switch t.Fault.Kind {
	case FaultNone:
		return 0
	case FaultCapability:
		off := t.SetMR(0, t.Fault.IP)
		if t.LookupFailure != nil {
			off = t.SetMR(off, t.LookupFailure.Cptr)
			off = t.SetMR(off, boolToWord(t.LookupFailure.InReceivePhase))
		}
		return off
	case FaultVMFault:
		off := t.SetMR(0, t.Fault.IP)
		off = t.SetMR(off, t.Fault.Address)
		off = t.SetMR(off, t.Fault.VMFSR)
		return off
	case FaultUnknownSyscall:
		off := t.SetMR(0, t.Fault.IP)
		off = t.SetMR(off, t.Fault.SyscallNumber)
		return off
	case FaultUserException:
		off := t.SetMR(0, t.Fault.IP)
		off = t.SetMR(off, t.Fault.ExceptionCode)
		return off
	case FaultTimeout:
		off := t.SetMR(0, t.Fault.IP)
		return off
	default:
		kassert.Unreachable("invalid fault kind %d at MR setup", t.Fault.Kind)
		return 0
	}
}

func boolToWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// CopyFaultMRs copies faulting's current fault record into handler and
// marshals it into handler's message registers, returning the number
// written — the receive-side counterpart of SetFaultMRs, used when a
// fault handler reads a faulting thread's report.
func CopyFaultMRs(faulting, handler *TCB) int {
	handler.Fault = faulting.Fault
	return handler.SetFaultMRs()
}
