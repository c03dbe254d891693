// Package mock provides a scripted hart for kernel tests.
package mock

import (
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
)

// Step runs user code from h.PC until the next trap. It edits tf the way
// the user program would and reports the trap with Ecall or Fault.
type Step func(h *Hart, tf *models.Trapframe) error

type Hart struct {
	csr   *cpu.Regs
	Steps []Step

	// pc user mode was entered at by the last Sret
	PC uint64
	// satp of every Sret, in order
	Satps  []uint64
	closed bool
}

func NewHart(steps ...Step) *Hart {
	return &Hart{csr: cpu.NewRegs(64, cpu.CSRs), Steps: steps}
}

func (h *Hart) ReadCSR(csr int) (uint64, error)    { return h.csr.RegRead(csr) }
func (h *Hart) WriteCSR(csr int, val uint64) error { return h.csr.RegWrite(csr, val) }

func (h *Hart) Sret(tf *models.Trapframe, satp uint64) error {
	if h.closed {
		return errors.New("mock: hart is closed")
	}
	status, _ := h.csr.RegRead(cpu.CSR_SSTATUS)
	if status&cpu.SSTATUS_SPP != 0 {
		return errors.New("mock: sret to supervisor mode")
	}
	if len(h.Steps) == 0 {
		return errors.New("mock: user program ran past its last step")
	}
	h.PC, _ = h.csr.RegRead(cpu.CSR_SEPC)
	h.Satps = append(h.Satps, satp)
	step := h.Steps[0]
	h.Steps = h.Steps[1:]
	return step(h, tf)
}

func (h *Hart) Close() error {
	h.closed = true
	return nil
}

// Ecall traps at the current pc with syscall num in a0 and args in a1...
func (h *Hart) Ecall(tf *models.Trapframe, num uint64, args ...uint64) {
	tf.SetReg(cpu.REG_A0, num)
	for i, a := range args {
		tf.SetReg(cpu.REG_A1+i, a)
	}
	h.trap(cpu.CAUSE_USER_ECALL, 0)
}

// Fault raises an exception other than a syscall.
func (h *Hart) Fault(cause, tval uint64) {
	h.trap(cause, tval)
}

func (h *Hart) trap(cause, tval uint64) {
	h.csr.RegWrite(cpu.CSR_SEPC, h.PC)
	h.csr.RegWrite(cpu.CSR_SCAUSE, cause)
	h.csr.RegWrite(cpu.CSR_STVAL, tval)
}

var _ models.Hart = (*Hart)(nil)
