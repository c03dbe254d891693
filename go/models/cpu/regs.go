package cpu

import (
	"github.com/pkg/errors"
)

// Regs is a sparse register file. Harts use it to shadow supervisor CSRs
// that the execution backend does not model itself.
type Regs struct {
	mask uint64
	vals map[int]uint64
}

func NewRegs(bits uint, enums []int) *Regs {
	r := &Regs{
		mask: ^uint64(0) >> (64 - bits),
		vals: make(map[int]uint64),
	}
	for _, e := range enums {
		r.vals[e] = 0
	}
	return r
}

func (r *Regs) RegRead(enum int) (uint64, error) {
	if val, ok := r.vals[enum]; !ok {
		return 0, errors.Errorf("invalid register %#x", enum)
	} else {
		return val, nil
	}
}

func (r *Regs) RegWrite(enum int, val uint64) error {
	val &= r.mask
	if _, ok := r.vals[enum]; !ok {
		return errors.Errorf("invalid register %#x", enum)
	}
	r.vals[enum] = val
	return nil
}

// Snapshot copies every register into a new map, for diffing and dumps.
func (r *Regs) Snapshot() map[int]uint64 {
	m := make(map[int]uint64, len(r.vals))
	for k, v := range r.vals {
		m[k] = v
	}
	return m
}
