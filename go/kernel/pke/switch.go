package pke

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/kernel/proc"
	"github.com/pkecore/pkecore/go/models/cpu"
)

func hex(v uint64) string { return fmt.Sprintf("0x%x", v) }

// SwitchTo makes p current and drops the hart into user mode at p's saved
// pc. It returns once p traps back into the supervisor.
func (k *Kernel) SwitchTo(p *proc.Process) error {
	k.current = p
	k.Mem = p
	if err := k.hart.WriteCSR(cpu.CSR_STVEC, TrapVector); err != nil {
		return errors.Wrap(err, "writing stvec")
	}
	satp, err := k.hart.ReadCSR(cpu.CSR_SATP)
	if err != nil {
		return errors.Wrap(err, "reading satp")
	}
	tf := p.Trapframe
	tf.KernelSP = p.KStack
	tf.KernelSatp = satp
	tf.KernelTrap = TrapHandler

	status, err := k.hart.ReadCSR(cpu.CSR_SSTATUS)
	if err != nil {
		return errors.Wrap(err, "reading sstatus")
	}
	// previous mode user, interrupts enabled after sret
	status &^= cpu.SSTATUS_SPP
	status |= cpu.SSTATUS_SPIE
	if err := k.hart.WriteCSR(cpu.CSR_SSTATUS, status); err != nil {
		return errors.Wrap(err, "writing sstatus")
	}
	if err := k.hart.WriteCSR(cpu.CSR_SEPC, tf.EPC); err != nil {
		return errors.Wrap(err, "writing sepc")
	}
	return errors.Wrap(k.hart.Sret(tf, p.Satp()), "sret")
}
