package models

import (
	"strings"
	"testing"

	"github.com/pkecore/pkecore/go/models/cpu"
)

func TestDump(t *testing.T) {
	var old, tf Trapframe
	tf.SetReg(cpu.REG_A0, 0x40)
	tf.EPC = 0x10080
	out := tf.Dump(&old, false)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != cpu.NUM_REGS/4+1 {
		t.Fatalf("dump has %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(out, "+  a0 0x0000000000000040") {
		t.Fatalf("changed a0 not marked:\n%s", out)
	}
	if !strings.Contains(out, "   sp 0x0000000000000000") {
		t.Fatalf("unchanged sp marked:\n%s", out)
	}
	if !strings.Contains(lines[len(lines)-1], "+ epc 0x0000000000010080") {
		t.Fatalf("epc line %q", lines[len(lines)-1])
	}
	if strings.Contains(tf.Dump(nil, false), "+") {
		t.Fatal("dump without a previous frame marks changes")
	}
}

func TestTrapframeRegs(t *testing.T) {
	var tf Trapframe
	tf.SetReg(cpu.REG_ZERO, 5)
	if tf.Reg(cpu.REG_ZERO) != 0 {
		t.Fatal("x0 is writable")
	}
	tf.SetReg(cpu.REG_A0+3, 9)
	if tf.Arg(3) != 9 {
		t.Fatalf("a3 = %d", tf.Arg(3))
	}
	tf.SetReg(cpu.REG_S0, 0x7fff0000)
	if tf.FP() != 0x7fff0000 {
		t.Fatal("fp is not s0")
	}
}

func TestClassify(t *testing.T) {
	for err, want := range map[error]ErrorClass{
		nil:               ClassNone,
		ErrIO:             ClassIO,
		ErrNotElf:         ClassFormat,
		ErrNoSymtab:       ClassFormat,
		ErrNoMem:          ClassResource,
		cpu.ErrOutOfPages: ClassResource,
		ErrInvariant:      ClassLogic,
		ErrTrap:           ClassLogic,
	} {
		if got := Classify(err); got != want {
			t.Errorf("Classify(%v) = %s, want %s", err, got, want)
		}
	}
}
