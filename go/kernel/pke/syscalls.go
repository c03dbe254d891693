package pke

import (
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/kernel/backtrace"
	co "github.com/pkecore/pkecore/go/kernel/common"
	"github.com/pkecore/pkecore/go/models"
)

const SYS_user_base = 64

const (
	SYS_user_print = SYS_user_base + iota
	SYS_user_exit
	SYS_user_allocate_page
	SYS_user_free_page
	SYS_user_print_backtrace
)

var syscallNames = map[uint64]string{
	SYS_user_print:           "user_print",
	SYS_user_exit:            "user_exit",
	SYS_user_allocate_page:   "user_allocate_page",
	SYS_user_free_page:       "user_free_page",
	SYS_user_print_backtrace: "user_print_backtrace",
}

const failed = ^uint64(0)

func (k *Kernel) UserPrint(buf co.Buf, n co.Len) (uint64, error) {
	p, err := buf.Read(n)
	if err != nil {
		return 0, err
	}
	k.cfg.Printf("%s", p)
	return 0, nil
}

// UserExit halts the machine; with a single process there is nothing left
// to run.
func (k *Kernel) UserExit(code int) (uint64, error) {
	k.cfg.Printf("User exit with code:%d.\n", code)
	return 0, models.ExitStatus(code)
}

// UserAllocatePage reserves n bytes of the current process's heap.
func (k *Kernel) UserAllocatePage(n co.Len) (uint64, error) {
	addr, err := k.current.Heap.Allocate(uint64(n))
	if err != nil {
		return 0, err
	}
	k.log.Debugf("heap: allocated %d bytes at %#x", n, addr)
	return addr, nil
}

func (k *Kernel) UserFreePage(addr co.Ptr) (uint64, error) {
	if err := k.current.Heap.Free(uint64(addr)); err != nil {
		return 0, err
	}
	return 0, nil
}

// UserPrintBacktrace prints up to floors caller names of the current
// process, stopping at main. A broken frame chain is reported to the
// program as -1.
func (k *Kernel) UserPrintBacktrace(floors uint64) uint64 {
	p := k.current
	var syms backtrace.Symbolizer = noSymbols{}
	if p.Exe != nil {
		syms = p.Exe
	}
	frames, err := backtrace.Walk(p, syms, p.Trapframe, floors)
	backtrace.Print(k.cfg.Console(), frames, k.cfg.Color)
	if err != nil {
		k.log.WithError(err).Warn("backtrace: frame chain ended early")
		return failed
	}
	return 0
}

type noSymbols struct{}

func (noSymbols) Lookup(uint64) (models.Symbol, bool) { return models.Symbol{}, false }

// SyscallName returns the name of syscall num.
func SyscallName(num uint64) (string, error) {
	if name, ok := syscallNames[num]; ok {
		return name, nil
	}
	return "", errors.Wrapf(models.ErrUnknownSyscall, "syscall %d", num)
}
