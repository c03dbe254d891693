// Package vmm maintains Sv39 page tables whose nodes live in simulated RAM.
package vmm

import (
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models/cpu"
)

// page table entry flags
const (
	PTE_V = 1 << 0
	PTE_R = 1 << 1
	PTE_W = 1 << 2
	PTE_X = 1 << 3
	PTE_U = 1 << 4
	PTE_G = 1 << 5
	PTE_A = 1 << 6
	PTE_D = 1 << 7
)

// MAXVA is one bit less than Sv39 allows, to avoid sign-extending addresses.
const MAXVA = uint64(1) << (9 + 9 + 9 + cpu.PGSHIFT - 1)

var ErrRemap = errors.New("remap of mapped page")

func PageRoundDown(a uint64) uint64 { return a &^ (cpu.PGSIZE - 1) }
func PageRoundUp(a uint64) uint64   { return (a + cpu.PGSIZE - 1) &^ (cpu.PGSIZE - 1) }

func px(level int, va uint64) uint64 {
	return (va >> (cpu.PGSHIFT + 9*uint(level))) & 0x1ff
}

func pte2pa(pte uint64) uint64 { return (pte >> 10) << 12 }
func pa2pte(pa uint64) uint64  { return (pa >> 12) << 10 }

// ProtToType converts PROT_* bits into leaf PTE permission bits.
func ProtToType(prot int, user bool) uint64 {
	perm := uint64(0)
	if prot&cpu.PROT_READ != 0 {
		perm |= PTE_R | PTE_A
	}
	if prot&cpu.PROT_WRITE != 0 {
		perm |= PTE_W | PTE_D
	}
	if prot&cpu.PROT_EXEC != 0 {
		perm |= PTE_X | PTE_A
	}
	if perm == 0 {
		perm = PTE_R
	}
	if user {
		perm |= PTE_U
	}
	return perm
}

type PageTable struct {
	mem  *cpu.PhysMem
	root uint64
}

func New(mem *cpu.PhysMem) (*PageTable, error) {
	root, err := mem.AllocPage()
	if err != nil {
		return nil, errors.Wrap(err, "allocating page table root")
	}
	return &PageTable{mem: mem, root: root}, nil
}

// Attach wraps an existing table rooted at root.
func Attach(mem *cpu.PhysMem, root uint64) *PageTable {
	return &PageTable{mem: mem, root: root}
}

// Root is the physical address of the top-level table, as programmed into satp.
func (pt *PageTable) Root() uint64 { return pt.root }

func (pt *PageTable) Mem() *cpu.PhysMem { return pt.mem }

// walk returns the physical address of the leaf PTE for va, creating
// intermediate tables when alloc is set. A zero address means no entry.
func (pt *PageTable) walk(va uint64, alloc bool) (uint64, error) {
	if va >= MAXVA {
		return 0, errors.Errorf("walk: va %#x out of range", va)
	}
	table := pt.root
	for level := 2; level > 0; level-- {
		slot := table + px(level, va)*8
		pte, err := pt.mem.ReadUint(slot, 8)
		if err != nil {
			return 0, err
		}
		if pte&PTE_V != 0 {
			table = pte2pa(pte)
			continue
		}
		if !alloc {
			return 0, nil
		}
		next, err := pt.mem.AllocPage()
		if err != nil {
			return 0, errors.Wrap(err, "allocating page table node")
		}
		if err := pt.mem.WriteUint(slot, 8, pa2pte(next)|PTE_V); err != nil {
			return 0, err
		}
		table = next
	}
	return table + px(0, va)*8, nil
}

// Map installs PTEs for [va, va+size) pointing at [pa, pa+size). va and
// size need not be page aligned; every page they touch is mapped.
func (pt *PageTable) Map(va, size, pa, perm uint64) error {
	if size == 0 {
		return errors.New("Map: zero size")
	}
	first := PageRoundDown(va)
	last := PageRoundDown(va + size - 1)
	pa = PageRoundDown(pa)
	for a := first; ; a, pa = a+cpu.PGSIZE, pa+cpu.PGSIZE {
		slot, err := pt.walk(a, true)
		if err != nil {
			return err
		}
		old, err := pt.mem.ReadUint(slot, 8)
		if err != nil {
			return err
		}
		if old&PTE_V != 0 {
			return errors.Wrapf(ErrRemap, "va %#x", a)
		}
		if err := pt.mem.WriteUint(slot, 8, pa2pte(pa)|perm|PTE_V); err != nil {
			return err
		}
		if a == last {
			break
		}
	}
	return nil
}

// Lookup returns the leaf PTE for va, if one is valid.
func (pt *PageTable) Lookup(va uint64) (uint64, bool) {
	slot, err := pt.walk(va, false)
	if err != nil || slot == 0 {
		return 0, false
	}
	pte, err := pt.mem.ReadUint(slot, 8)
	if err != nil || pte&PTE_V == 0 {
		return 0, false
	}
	return pte, true
}

// Translate resolves a user-accessible va to its physical address.
func (pt *PageTable) Translate(va uint64) (uint64, bool) {
	pte, ok := pt.Lookup(va)
	if !ok || pte&PTE_U == 0 {
		return 0, false
	}
	return pte2pa(pte) | va&(cpu.PGSIZE-1), true
}

// Walk calls fn for every valid leaf mapping, in address order.
func (pt *PageTable) Walk(fn func(va, pa, perm uint64) error) error {
	return pt.walkLevel(pt.root, 2, 0, fn)
}

func (pt *PageTable) walkLevel(table uint64, level int, base uint64, fn func(va, pa, perm uint64) error) error {
	for i := uint64(0); i < 512; i++ {
		pte, err := pt.mem.ReadUint(table+i*8, 8)
		if err != nil {
			return err
		}
		if pte&PTE_V == 0 {
			continue
		}
		va := base | i<<(cpu.PGSHIFT+9*uint(level))
		if level == 0 {
			if err := fn(va, pte2pa(pte), pte&0x3ff); err != nil {
				return err
			}
			continue
		}
		if err := pt.walkLevel(pte2pa(pte), level-1, va, fn); err != nil {
			return err
		}
	}
	return nil
}

// PermString renders PTE permission bits as "rwxu", with '-' for clear bits.
func PermString(perm uint64) string {
	out := []byte("----")
	for i, bit := range []uint64{PTE_R, PTE_W, PTE_X, PTE_U} {
		if perm&bit != 0 {
			out[i] = "rwxu"[i]
		}
	}
	return string(out)
}
