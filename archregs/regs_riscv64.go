//go:build riscv64

package archregs

// msgRegisterNum is the count of riscv64 IPC message registers carried in
// the architectural register file before the IPC buffer takes over.
const msgRegisterNum = 4

const (
	sstatusSPP  = 1 << 8
	sstatusSPIE = 1 << 5
)

// sstatusIdleFlags is the riscv64 sstatus pattern configured for the idle
// thread: SPP (return to supervisor mode) and SPIE (re-enable interrupts
// on return), matching "SSTATUS_SPP | SSTATUS_SPIE".
const sstatusIdleFlags = sstatusSPP | sstatusSPIE

func configureIdle(f *File) {
	f.Set(FlagsReg, sstatusIdleFlags)
}

// SSTATUS returns the riscv64 supervisor status register.
func (f *File) SSTATUS() uint64 { return f.Get(FlagsReg) }

// SetSSTATUS writes the riscv64 supervisor status register.
func (f *File) SetSSTATUS(v uint64) { f.Set(FlagsReg, v) }
