package vmm

import (
	"encoding/binary"

	"github.com/pkecore/pkecore/go/models/cpu"
)

// RV64 is little-endian
var binaryOrder = binary.LittleEndian

// ReadUser copies user memory at va into p, page by page.
func (pt *PageTable) ReadUser(va uint64, p []byte) error {
	for len(p) > 0 {
		pa, ok := pt.Translate(va)
		if !ok {
			return &cpu.MemError{Addr: va, Size: len(p), Enum: cpu.MEM_READ_UNMAPPED}
		}
		n := int(cpu.PGSIZE - va&(cpu.PGSIZE-1))
		if n > len(p) {
			n = len(p)
		}
		if err := pt.mem.Read(pa, p[:n]); err != nil {
			return err
		}
		va, p = va+uint64(n), p[n:]
	}
	return nil
}

// WriteUser copies p into user memory at va, page by page.
func (pt *PageTable) WriteUser(va uint64, p []byte) error {
	for len(p) > 0 {
		pa, ok := pt.Translate(va)
		if !ok {
			return &cpu.MemError{Addr: va, Size: len(p), Enum: cpu.MEM_WRITE_UNMAPPED}
		}
		n := int(cpu.PGSIZE - va&(cpu.PGSIZE-1))
		if n > len(p) {
			n = len(p)
		}
		if err := pt.mem.Write(pa, p[:n]); err != nil {
			return err
		}
		va, p = va+uint64(n), p[n:]
	}
	return nil
}

func (pt *PageTable) ReadUint64(va uint64) (uint64, error) {
	var buf [8]byte
	if err := pt.ReadUser(va, buf[:]); err != nil {
		return 0, err
	}
	return cpu.UnpackUint(binaryOrder, 8, buf[:])
}

func (pt *PageTable) WriteUint64(va, val uint64) error {
	buf, _ := cpu.PackUint(binaryOrder, 8, nil, val)
	return pt.WriteUser(va, buf)
}
