package models

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"

	"github.com/pkecore/pkecore/go/models/cpu"
)

var chSame = ansi.ColorCode("default:default")
var chNew = ansi.ColorCode("default+bu:default")

func colorPad(s, color string, pad int) string {
	length := len(s)
	s = color + s + ansi.Reset
	if length < pad {
		s = strings.Repeat(" ", pad-length) + s
	}
	return s
}

// Dump formats the trapframe four registers per row. Registers that differ
// from old are marked, in bold when color is set. old may be nil.
func (tf *Trapframe) Dump(old *Trapframe, color bool) string {
	var out []string
	cell := func(name string, val, prev uint64) string {
		changed := old != nil && val != prev
		switch {
		case changed && color:
			return fmt.Sprintf(" %s 0x%s", colorPad(name, chNew, 4), colorPad(fmt.Sprintf("%016x", val), chNew, 0))
		case changed:
			return fmt.Sprintf("+%4s 0x%016x", name, val)
		case color:
			return fmt.Sprintf(" %s 0x%016x", colorPad(name, chSame, 4), val)
		}
		return fmt.Sprintf(" %4s 0x%016x", name, val)
	}
	var row []string
	for i := 0; i < cpu.NUM_REGS; i++ {
		var prev uint64
		if old != nil {
			prev = old.Regs[i]
		}
		row = append(row, cell(cpu.RegNames[i], tf.Regs[i], prev))
		if len(row) == 4 {
			out = append(out, strings.Join(row, " "))
			row = nil
		}
	}
	var prevEPC uint64
	if old != nil {
		prevEPC = old.EPC
	}
	out = append(out, cell("epc", tf.EPC, prevEPC))
	return strings.Join(out, "\n") + "\n"
}
