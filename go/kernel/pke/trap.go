package pke

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	co "github.com/pkecore/pkecore/go/kernel/common"
	"github.com/pkecore/pkecore/go/kernel/proc"
	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
)

// HandleTrap services the trap p just took. Only syscalls are handled; any
// other exception is fatal.
func (k *Kernel) HandleTrap(p *proc.Process) error {
	status, err := k.hart.ReadCSR(cpu.CSR_SSTATUS)
	if err != nil {
		return err
	}
	if status&cpu.SSTATUS_SPP != 0 {
		return errors.Wrap(models.ErrInvariant, "usertrap: not from user mode")
	}
	tf := p.Trapframe
	if tf.EPC, err = k.hart.ReadCSR(cpu.CSR_SEPC); err != nil {
		return err
	}
	cause, err := k.hart.ReadCSR(cpu.CSR_SCAUSE)
	if err != nil {
		return err
	}
	if cause != cpu.CAUSE_USER_ECALL {
		tval, _ := k.hart.ReadCSR(cpu.CSR_STVAL)
		return errors.Wrapf(models.ErrTrap, "usertrap: scause %#x sepc %#x stval %#x", cause, tf.EPC, tval)
	}
	// resume after the ecall
	tf.EPC += 4
	ret, err := k.Syscall(tf)
	if err != nil {
		return err
	}
	tf.SetReg(cpu.REG_A0, ret)
	return nil
}

// Syscall dispatches on the number in a0 with arguments in a1..a7.
func (k *Kernel) Syscall(tf *models.Trapframe) (uint64, error) {
	num, args := co.SyscallArgs(tf)
	name, err := SyscallName(num)
	if err != nil {
		return 0, err
	}
	sys := co.Lookup(k, name)
	if sys == nil {
		return 0, errors.Wrapf(models.ErrUnknownSyscall, "no handler for %s", name)
	}
	if k.log.IsLevelEnabled(logrus.DebugLevel) {
		k.log.Debug(sys.Trace(args))
	}
	ret, err := sys.Call(args)
	if err != nil {
		return 0, err
	}
	k.log.Debugf("%s%s", sys.Name, sys.TraceRet(ret))
	return ret, nil
}
