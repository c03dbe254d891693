package loader

import (
	"github.com/pkecore/pkecore/go/models/cpu"
)

const ELF_MAGIC = 0x464C457F // "\x7FELF" read little-endian

const (
	ELFCLASS64  = 2
	ELFDATA2LSB = 1
)

// program header types
const PT_LOAD = 1

// program header flags
const (
	PF_X = 1
	PF_W = 2
	PF_R = 4
)

// section header types
const (
	SHT_NULL   = 0
	SHT_SYMTAB = 2
	SHT_STRTAB = 3
)

// symbol types, the low nibble of Sym.Info
const (
	STT_NOTYPE = 0
	STT_OBJECT = 1
	STT_FUNC   = 2
)

const (
	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64
	symSize  = 24
)

type ElfHeader struct {
	Magic     uint32
	Ident     [12]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// Class is EI_CLASS, the byte after the magic.
func (h *ElfHeader) Class() byte { return h.Ident[0] }

type ProgHeader struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

func (p *ProgHeader) Prot() int {
	prot := 0
	if p.Flags&PF_R != 0 {
		prot |= cpu.PROT_READ
	}
	if p.Flags&PF_W != 0 {
		prot |= cpu.PROT_WRITE
	}
	if p.Flags&PF_X != 0 {
		prot |= cpu.PROT_EXEC
	}
	return prot
}

type SectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

type Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

func (s *Sym) Type() int { return int(s.Info & 0xf) }
