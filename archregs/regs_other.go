//go:build !arm64 && !riscv64

package archregs

// msgRegisterNum is a generic fallback register-file size for
// architectures this module doesn't model explicitly (e.g. amd64 test
// builds). It mirrors the per-platform "unsupported
// platform" fallback rather than claiming a specific ISA layout.
const msgRegisterNum = 4

func configureIdle(f *File) {
	f.Set(FlagsReg, 0)
}
