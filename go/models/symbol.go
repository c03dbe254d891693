package models

// Symbol is a function symbol covering [Start, Start+Size).
type Symbol struct {
	Name  string
	Start uint64
	Size  uint64
}

func (s Symbol) Contains(addr uint64) bool {
	return s.Start <= addr && addr < s.Start+s.Size
}
