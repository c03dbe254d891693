package common

import (
	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
)

// SyscallArgs returns the syscall number in a0 and the arguments in a1..a7.
func SyscallArgs(tf *models.Trapframe) (uint64, []uint64) {
	args := make([]uint64, 0, 7)
	for r := cpu.REG_A1; r <= cpu.REG_A7; r++ {
		args = append(args, tf.Reg(r))
	}
	return tf.Reg(cpu.REG_A0), args
}
