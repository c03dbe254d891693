package mm

import (
	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models"
)

// Handle names an area in a heap's arena.
type Handle int32

const nilHandle Handle = -1

type area struct {
	models.Segment
	next Handle
}

type indexEntry struct {
	start  uint64
	handle Handle
}

func byStart(a, b indexEntry) bool { return a.start < b.start }

// regionList is an unordered singly linked list of areas. New areas are
// pushed at the head, so scans see the most recently inserted area first.
// index maps each area's start address to its handle for range lookups.
type regionList struct {
	head  Handle
	index *btree.BTreeG[indexEntry]
}

func newRegionList() regionList {
	return regionList{head: nilHandle, index: btree.NewG[indexEntry](8, byStart)}
}

func (l *regionList) Len() int { return l.index.Len() }

func (h *Heap) push(l *regionList, seg models.Segment) Handle {
	n := h.alloc(seg)
	h.arena[n].next = l.head
	l.head = n
	l.index.ReplaceOrInsert(indexEntry{seg.Start, n})
	return n
}

func (h *Heap) unlink(l *regionList, n Handle) {
	prev := nilHandle
	for cur := l.head; cur != nilHandle; prev, cur = cur, h.arena[cur].next {
		if cur != n {
			continue
		}
		if prev == nilHandle {
			l.head = h.arena[cur].next
		} else {
			h.arena[prev].next = h.arena[cur].next
		}
		l.index.Delete(indexEntry{start: h.arena[cur].Start})
		h.release(cur)
		return
	}
}

// find returns the area containing addr.
func (h *Heap) find(l *regionList, addr uint64) (Handle, bool) {
	found := nilHandle
	l.index.DescendLessOrEqual(indexEntry{start: addr}, func(e indexEntry) bool {
		found = e.handle
		return false
	})
	if found == nilHandle || !h.arena[found].Contains(addr) {
		return nilHandle, false
	}
	return found, true
}

// startingAt returns the area beginning exactly at addr.
func (h *Heap) startingAt(l *regionList, addr uint64) (Handle, bool) {
	e, ok := l.index.Get(indexEntry{start: addr})
	return e.handle, ok
}

// endingAt returns the area whose end is exactly addr.
func (h *Heap) endingAt(l *regionList, addr uint64) (Handle, bool) {
	if addr == 0 {
		return nilHandle, false
	}
	n, ok := h.find(l, addr-1)
	if ok && h.arena[n].End == addr {
		return n, true
	}
	return nilHandle, false
}

func (h *Heap) setStart(l *regionList, n Handle, start uint64) {
	l.index.Delete(indexEntry{start: h.arena[n].Start})
	h.arena[n].Start = start
	l.index.ReplaceOrInsert(indexEntry{start, n})
}

// split carves target out of the area in l that contains it. The residues
// on either side of target stay in l as areas of their own.
func (h *Heap) split(l *regionList, target models.Segment) error {
	n, ok := h.find(l, target.Start)
	if !ok || target.End > h.arena[n].End || target.End <= target.Start {
		return errors.Wrapf(models.ErrInvariant, "split: no region holds %s", target)
	}
	outer := h.arena[n].Segment
	h.unlink(l, n)
	if target.Start > outer.Start {
		h.push(l, models.Segment{Start: outer.Start, End: target.Start})
	}
	if target.End < outer.End {
		h.push(l, models.Segment{Start: target.End, End: outer.End})
	}
	return nil
}

// union inserts seg into l, merging it with any area it touches on either
// side until no two areas in l are byte-contiguous.
func (h *Heap) union(l *regionList, seg models.Segment) {
	left, hasLeft := h.endingAt(l, seg.Start)
	right, hasRight := h.startingAt(l, seg.End)
	switch {
	case hasLeft && hasRight:
		end := h.arena[right].End
		h.unlink(l, right)
		h.arena[left].End = end
	case hasLeft:
		h.arena[left].End = seg.End
	case hasRight:
		h.setStart(l, right, seg.Start)
	default:
		h.push(l, seg)
	}
}

// segments lists l in scan order.
func (h *Heap) segments(l *regionList) []models.Segment {
	out := make([]models.Segment, 0, l.Len())
	for cur := l.head; cur != nilHandle; cur = h.arena[cur].next {
		out = append(out, h.arena[cur].Segment)
	}
	return out
}
