// Package mm implements the per-process heap: a first-fit allocator over
// one committed extent of user virtual memory.
//
// Bookkeeping lives in a kernel-side arena, never in the user pages being
// handed out. Each allocation still accounts for DescriptorSize bytes of
// header in front of the payload plus DescriptorSize bytes of slack, so
// address layouts match what user programs built against the in-place
// allocator expect.
package mm

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
)

// DescriptorSize is the footprint of one region descriptor (start, end, next).
const DescriptorSize = 24

// Mapper backs user pages with physical memory.
type Mapper interface {
	AllocPage() (uint64, error)
	MapPage(va, pa uint64, prot int) error
}

type Heap struct {
	extent models.Segment
	arena  []area
	spare  []Handle
	free   regionList
	used   regionList
}

func New() *Heap {
	return &Heap{free: newRegionList(), used: newRegionList()}
}

func (h *Heap) alloc(seg models.Segment) Handle {
	if n := len(h.spare); n > 0 {
		hd := h.spare[n-1]
		h.spare = h.spare[:n-1]
		h.arena[hd] = area{Segment: seg, next: nilHandle}
		return hd
	}
	h.arena = append(h.arena, area{Segment: seg, next: nilHandle})
	return Handle(len(h.arena) - 1)
}

func (h *Heap) release(n Handle) {
	h.arena[n] = area{next: nilHandle}
	h.spare = append(h.spare, n)
}

// Init commits size bytes of fresh read/write user memory at start and
// makes the whole extent one free region.
func (h *Heap) Init(m Mapper, start, size uint64) error {
	if h.extent.Size() != 0 {
		return errors.Wrap(models.ErrInvariant, "heap already initialized")
	}
	if size == 0 || size%cpu.PGSIZE != 0 || start%cpu.PGSIZE != 0 {
		return errors.Wrapf(models.ErrInvariant, "heap extent %#x+%#x is not page aligned", start, size)
	}
	if start+size < start {
		return errors.Wrapf(models.ErrInvariant, "heap extent %#x+%#x wraps", start, size)
	}
	for off := uint64(0); off < size; off += cpu.PGSIZE {
		pa, err := m.AllocPage()
		if err != nil {
			return errors.Wrap(err, "backing heap")
		}
		if err := m.MapPage(start+off, pa, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
			return errors.Wrapf(err, "mapping heap page %#x", start+off)
		}
	}
	h.extent = models.Segment{Start: start, End: start + size}
	h.push(&h.free, h.extent)
	return nil
}

func (h *Heap) Extent() models.Segment { return h.extent }

// RequestSize is the region size Allocate carves out for an n-byte request.
func RequestSize(n uint64) uint64 {
	return ((n>>3)+1)<<3 + 2*DescriptorSize
}

// Allocate reserves room for n bytes and returns the payload address.
// The first free region in list order that is large enough is used. A
// remainder too small to hold a descriptor goes to the block as well.
func (h *Heap) Allocate(n uint64) (uint64, error) {
	if n >= h.extent.Size() {
		return 0, errors.Wrapf(models.ErrNoMem, "allocate(%d)", n)
	}
	want := RequestSize(n)
	for cur := h.free.head; cur != nilHandle; cur = h.arena[cur].next {
		if h.arena[cur].Size() < want {
			continue
		}
		start := h.arena[cur].Start
		block := models.Segment{Start: start, End: start + want}
		if h.arena[cur].Size()-want < DescriptorSize {
			block.End = h.arena[cur].End
		}
		if err := h.split(&h.free, block); err != nil {
			return 0, err
		}
		h.push(&h.used, block)
		return start + DescriptorSize, nil
	}
	return 0, errors.Wrapf(models.ErrNoMem, "allocate(%d)", n)
}

// Free returns the used region containing addr to the free list. addr may
// point anywhere inside the region.
func (h *Heap) Free(addr uint64) error {
	n, ok := h.find(&h.used, addr)
	if !ok {
		return errors.Wrapf(models.ErrInvariant, "free(%#x): address not allocated", addr)
	}
	seg := h.arena[n].Segment
	h.unlink(&h.used, n)
	h.union(&h.free, seg)
	return nil
}

// Region returns the used region containing addr.
func (h *Heap) Region(addr uint64) (models.Segment, bool) {
	n, ok := h.find(&h.used, addr)
	if !ok {
		return models.Segment{}, false
	}
	return h.arena[n].Segment, true
}

// FreeRegions lists the free list in scan order.
func (h *Heap) FreeRegions() []models.Segment { return h.segments(&h.free) }

// Used lists the used list in scan order.
func (h *Heap) Used() []models.Segment { return h.segments(&h.used) }

// Check verifies that the free and used regions are disjoint, that together
// they cover the extent exactly, that none is smaller than a descriptor, and
// that no two free regions touch.
func (h *Heap) Check() error {
	free, used := h.FreeRegions(), h.Used()
	all := append(append([]models.Segment{}, free...), used...)
	sort.Slice(all, func(i, j int) bool { return all[i].Start < all[j].Start })
	pos := h.extent.Start
	for _, seg := range all {
		if seg.Start != pos {
			return errors.Wrapf(models.ErrInvariant, "heap: expected region at %#x, found %s", pos, seg)
		}
		if seg.End <= seg.Start {
			return errors.Wrapf(models.ErrInvariant, "heap: empty region %s", seg)
		}
		if seg.Size() < DescriptorSize {
			return errors.Wrapf(models.ErrInvariant, "heap: region %s is smaller than a descriptor", seg)
		}
		pos = seg.End
	}
	if pos != h.extent.End {
		return errors.Wrapf(models.ErrInvariant, "heap: regions end at %#x, extent ends at %#x", pos, h.extent.End)
	}
	sort.Slice(free, func(i, j int) bool { return free[i].Start < free[j].Start })
	for i := 1; i < len(free); i++ {
		if free[i-1].End == free[i].Start {
			return errors.Wrapf(models.ErrInvariant, "heap: free regions %s and %s not merged", free[i-1], free[i])
		}
	}
	return nil
}
