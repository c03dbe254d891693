package models

import (
	"github.com/pkecore/pkecore/go/models/cpu"
)

// Trapframe is the state saved on a trap from user mode and restored on sret.
type Trapframe struct {
	Regs [cpu.NUM_REGS]uint64

	// kernel stack to switch to on trap entry
	KernelSP uint64
	// address of the supervisor trap handler
	KernelTrap uint64
	// saved user pc
	EPC uint64
	// kernel satp to restore on trap entry
	KernelSatp uint64
}

func (tf *Trapframe) Reg(n int) uint64 {
	if n == cpu.REG_ZERO {
		return 0
	}
	return tf.Regs[n]
}

func (tf *Trapframe) SetReg(n int, val uint64) {
	if n != cpu.REG_ZERO {
		tf.Regs[n] = val
	}
}

func (tf *Trapframe) RA() uint64 { return tf.Regs[cpu.REG_RA] }
func (tf *Trapframe) SP() uint64 { return tf.Regs[cpu.REG_SP] }
func (tf *Trapframe) FP() uint64 { return tf.Regs[cpu.REG_S0] }

// Arg returns argument register a<n>.
func (tf *Trapframe) Arg(n int) uint64 { return tf.Regs[cpu.REG_A0+n] }

// Hart is one privileged RISC-V hardware thread as seen by the supervisor.
type Hart interface {
	ReadCSR(csr int) (uint64, error)
	WriteCSR(csr int, val uint64) error
	// Sret loads tf into the integer registers, activates satp and drops to
	// the privilege in sstatus.SPP at sepc. It returns after the next trap
	// into supervisor mode, with tf holding the trapped registers and
	// sepc/scause/stval describing the trap.
	Sret(tf *Trapframe, satp uint64) error
	Close() error
}
