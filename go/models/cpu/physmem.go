package cpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/pkg/errors"
)

// DRAM_BASE is where physical memory starts on the modeled board.
const DRAM_BASE = 0x80000000

var ErrOutOfPages = errors.New("out of physical pages")

type MemError struct {
	Addr uint64
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_WRITE_PROT:
		reason = "protected write"
	case MEM_READ_PROT:
		reason = "protected read"
	case MEM_FETCH_PROT:
		reason = "protected exec"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

// PhysMem is the board's RAM: a contiguous arena starting at Base, handed
// out one zeroed page at a time.
type PhysMem struct {
	Base  uint64
	order binary.ByteOrder
	data  []byte
	free  []uint64
	next  uint64
	inUse int
}

// NewPhysMem reserves size bytes (rounded down to whole pages) of RAM at DRAM_BASE.
func NewPhysMem(size uint64) (*PhysMem, error) {
	size &^= PGSIZE - 1
	if size == 0 {
		return nil, errors.New("physical memory size must be at least one page")
	}
	data, err := allocArena(int(size))
	if err != nil {
		return nil, errors.Wrap(err, "reserving physical memory")
	}
	return &PhysMem{
		Base:  DRAM_BASE,
		order: binary.LittleEndian,
		data:  data,
		next:  DRAM_BASE,
	}, nil
}

func (m *PhysMem) Size() uint64 { return uint64(len(m.data)) }

// Pages returns the number of pages currently allocated.
func (m *PhysMem) Pages() int { return m.inUse }

func (m *PhysMem) Close() error {
	if m.data == nil {
		return nil
	}
	err := freeArena(m.data)
	m.data = nil
	return err
}

// AllocPage returns the physical address of a zeroed page.
func (m *PhysMem) AllocPage() (uint64, error) {
	var pa uint64
	if n := len(m.free); n > 0 {
		pa = m.free[n-1]
		m.free = m.free[:n-1]
	} else if m.next+PGSIZE <= m.Base+m.Size() {
		pa = m.next
		m.next += PGSIZE
	} else {
		return 0, errors.WithStack(ErrOutOfPages)
	}
	page := m.page(pa)
	for i := range page {
		page[i] = 0
	}
	m.inUse++
	return pa, nil
}

func (m *PhysMem) FreePage(pa uint64) error {
	if pa&(PGSIZE-1) != 0 || !m.Contains(pa, PGSIZE) {
		return errors.Errorf("FreePage(%#x): bad page address", pa)
	}
	m.free = append(m.free, pa)
	m.inUse--
	return nil
}

func (m *PhysMem) Contains(pa, size uint64) bool {
	return pa >= m.Base && pa+size >= pa && pa+size <= m.Base+m.Size()
}

func (m *PhysMem) page(pa uint64) []byte {
	o := pa - m.Base
	return m.data[o : o+PGSIZE]
}

// Ptr returns a host pointer to pa, for backends that share RAM with the arena.
func (m *PhysMem) Ptr(pa uint64) unsafe.Pointer {
	return unsafe.Pointer(&m.data[pa-m.Base])
}

func (m *PhysMem) Read(pa uint64, p []byte) error {
	if !m.Contains(pa, uint64(len(p))) {
		return &MemError{Addr: pa, Size: len(p), Enum: MEM_READ_UNMAPPED}
	}
	copy(p, m.data[pa-m.Base:])
	return nil
}

func (m *PhysMem) Write(pa uint64, p []byte) error {
	if !m.Contains(pa, uint64(len(p))) {
		return &MemError{Addr: pa, Size: len(p), Enum: MEM_WRITE_UNMAPPED}
	}
	copy(m.data[pa-m.Base:], p)
	return nil
}

func (m *PhysMem) ReadUint(pa uint64, size int) (uint64, error) {
	var buf [8]byte
	if size > 8 {
		return 0, errors.Errorf("ReadUint size too large: %d > 8", size)
	}
	if err := m.Read(pa, buf[:size]); err != nil {
		return 0, err
	}
	return UnpackUint(m.order, size, buf[:size])
}

func (m *PhysMem) WriteUint(pa uint64, size int, val uint64) error {
	var buf [8]byte
	p, err := PackUint(m.order, size, buf[:], val)
	if err != nil {
		return err
	}
	return m.Write(pa, p)
}
