package tcb

import "fmt"

// FrameCap is the subset of a capability-space slot's contents
// lookup_ipc_buffer cares about: is it a non-device frame with adequate
// VM rights, and where is it mapped. Capability-space lookup itself is an
// external collaborator; this package only consumes the
// result.
type FrameCap struct {
	IsFrame    bool
	IsDevice   bool
	Base       uint64 // mapped base address
	Readable   bool
	Writable   bool
}

// CSpace is the external collaborator that resolves a thread's buffer
// capability slot and, separately, arbitrary capability pointers (for
// lookup_extra_caps). Supplied by the capability-space subsystem, which
// lies outside this module.
type CSpace interface {
	LookupBufferFrame(tcbIPCBufferSlot uint64) (FrameCap, error)
	ResolveAddressBits(cptr uint64) (uint64, error)
}

// LookupIPCBuffer implements lookup_ipc_buffer: resolve the
// thread's buffer capability slot, verify it is a non-device frame with
// sufficient VM rights (always need read-write; read-only is acceptable
// only when the thread is not the receiver of the current operation), and
// compute the buffer's base address. bufferSlot is the raw
// tcb.ipc_buffer value: it is passed to the CSpace lookup, and its
// page-offset bits (bufferSlot & pageMask) locate the buffer within its
// frame.
func (t *TCB) LookupIPCBuffer(cs CSpace, bufferSlot uint64, pageMask uint64, isReceiver bool) error {
	cap, err := cs.LookupBufferFrame(bufferSlot)
	if err != nil {
		t.IPCBuffer = IPCBuffer{}
		return fmt.Errorf("lookup_ipc_buffer: %w", err)
	}
	if !cap.IsFrame || cap.IsDevice {
		t.IPCBuffer = IPCBuffer{}
		return ErrIPCBufferInvalid
	}
	sufficientRights := cap.Writable && cap.Readable
	if !isReceiver {
		sufficientRights = sufficientRights || cap.Readable
	}
	if !sufficientRights {
		t.IPCBuffer = IPCBuffer{}
		return ErrIPCBufferInvalid
	}
	t.IPCBuffer = IPCBuffer{
		Valid:    true,
		Base:     cap.Base + (bufferSlot & pageMask),
		Writable: cap.Writable,
	}
	return nil
}

// LookupExtraCaps implements lookup_extra_caps: reads up to
// extraCaps capability pointers from the (already-resolved) IPC buffer and
// resolves each through the caller's CSpace. On the first resolution
// failure, records a cap-fault on t and returns that error; all caps
// before the failing one are still returned.
func (t *TCB) LookupExtraCaps(cs CSpace, bufPtrs []uint64, extraCaps int, inReceivePhase bool) ([]uint64, error) {
	n := extraCaps
	if n > len(bufPtrs) {
		n = len(bufPtrs)
	}
	resolved := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		addr, err := cs.ResolveAddressBits(bufPtrs[i])
		if err != nil {
			t.Fault = Fault{Kind: FaultCapability}
			t.LookupFailure = &LookupFailure{
				Cptr:           bufPtrs[i],
				InReceivePhase: inReceivePhase,
				Reason:         err.Error(),
			}
			return resolved, fmt.Errorf("lookup_extra_caps: slot %d: %w", i, err)
		}
		resolved = append(resolved, addr)
	}
	return resolved, nil
}
