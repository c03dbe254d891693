package common

import (
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models/cpu"
)

type (
	// Buf is a user virtual address.
	Buf struct {
		Addr uint64
		K    *KernelBase
	}
	Len uint64
	Ptr uint64
)

func NewBuf(k Kernel, addr uint64) Buf {
	return Buf{K: k.PkeKernel(), Addr: addr}
}

// Read copies n bytes of user memory starting at the buffer, one page at a
// time, so a length running past mapped memory fails before it is allocated.
func (b Buf) Read(n Len) ([]byte, error) {
	end := b.Addr + uint64(n)
	if end < b.Addr {
		return nil, errors.WithStack(&cpu.MemError{Addr: b.Addr, Enum: cpu.MEM_READ_UNMAPPED})
	}
	var out []byte
	for va := b.Addr; va < end; {
		next := (va &^ (cpu.PGSIZE - 1)) + cpu.PGSIZE
		if next > end || next < va {
			next = end
		}
		chunk := make([]byte, next-va)
		if err := b.K.Mem.ReadUser(va, chunk); err != nil {
			return nil, errors.Wrapf(err, "reading user buffer %#x", b.Addr)
		}
		out = append(out, chunk...)
		va = next
	}
	return out, nil
}

func (b Buf) Write(p []byte) error {
	return errors.Wrapf(b.K.Mem.WriteUser(b.Addr, p), "writing user buffer %#x", b.Addr)
}
