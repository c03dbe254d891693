package models

import "fmt"

// SegmentData describes one loadable piece of an executable image.
type SegmentData struct {
	Off               uint64
	Addr              uint64
	FileSize, MemSize uint64
	Prot              int
}

func (s *SegmentData) ContainsPhys(addr uint64) bool {
	return s.Off <= addr && addr < s.Off+s.FileSize
}

func (s *SegmentData) ContainsVirt(addr uint64) bool {
	return s.Addr <= addr && addr < s.Addr+s.MemSize
}

// Segment is a half-open address range [Start, End).
type Segment struct {
	Start, End uint64
}

func (s Segment) Size() uint64 {
	return s.End - s.Start
}

func (s Segment) Contains(addr uint64) bool {
	return s.Start <= addr && addr < s.End
}

// Adjacent reports whether s and o touch without overlapping.
func (s Segment) Adjacent(o Segment) bool {
	return s.End == o.Start || o.End == s.Start
}

func (s Segment) Overlaps(o Segment) bool {
	return (s.Start >= o.Start && s.Start < o.End) || (o.Start >= s.Start && o.Start < s.End)
}

func (s *Segment) Merge(o Segment) {
	if s.Start > o.Start {
		s.Start = o.Start
	}
	if s.End < o.End {
		s.End = o.End
	}
}

func (s Segment) String() string {
	return fmt.Sprintf("0x%x-0x%x", s.Start, s.End)
}
