// Package elftest builds small RV64 ELF images in memory for tests.
package elftest

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"

	"github.com/pkecore/pkecore/go/loader"
)

const EM_RISCV = 243

type Segment struct {
	Vaddr   uint64
	Data    []byte
	MemSize uint64 // defaults to len(Data)
	Flags   uint32
}

type Symbol struct {
	Name string
	Addr uint64
	Size uint64
	Type int // defaults to STT_FUNC
}

type Builder struct {
	Entry    uint64
	Segments []Segment
	Symbols  []Symbol
	// NoSymtab leaves out .symtab and .strtab, like a stripped binary.
	NoSymtab bool
}

func pack(buf *bytes.Buffer, v interface{}) {
	if err := struc.PackWithOrder(buf, v, binary.LittleEndian); err != nil {
		panic(err)
	}
}

func pad(buf *bytes.Buffer, align int) {
	for buf.Len()%align != 0 {
		buf.WriteByte(0)
	}
}

// Bytes lays the image out as: header, program headers, segment data,
// .strtab, .symtab, .shstrtab, section headers.
func (b *Builder) Bytes() []byte {
	var body bytes.Buffer
	phoff := uint64(64)
	dataOff := phoff + uint64(len(b.Segments))*56
	body.Write(make([]byte, dataOff))

	var phdrs []loader.ProgHeader
	for _, seg := range b.Segments {
		pad(&body, 16)
		memsz := seg.MemSize
		if memsz < uint64(len(seg.Data)) {
			memsz = uint64(len(seg.Data))
		}
		flags := seg.Flags
		if flags == 0 {
			flags = loader.PF_R | loader.PF_X
		}
		phdrs = append(phdrs, loader.ProgHeader{
			Type:   loader.PT_LOAD,
			Flags:  flags,
			Off:    uint64(body.Len()),
			Vaddr:  seg.Vaddr,
			Paddr:  seg.Vaddr,
			Filesz: uint64(len(seg.Data)),
			Memsz:  memsz,
			Align:  0x1000,
		})
		body.Write(seg.Data)
	}

	shstrtab := []byte("\x00.symtab\x00.strtab\x00.shstrtab\x00")
	sections := []loader.SectionHeader{{}}
	if !b.NoSymtab {
		strtab := []byte{0}
		syms := []loader.Sym{{}}
		for _, sym := range b.Symbols {
			typ := sym.Type
			if typ == 0 {
				typ = loader.STT_FUNC
			}
			syms = append(syms, loader.Sym{
				Name:  uint32(len(strtab)),
				Info:  uint8(1<<4 | typ),
				Shndx: 1,
				Value: sym.Addr,
				Size:  sym.Size,
			})
			strtab = append(append(strtab, sym.Name...), 0)
		}
		strOff := uint64(body.Len())
		body.Write(strtab)
		pad(&body, 8)
		symOff := uint64(body.Len())
		for i := range syms {
			pack(&body, &syms[i])
		}
		sections = append(sections,
			loader.SectionHeader{Name: 1, Type: loader.SHT_SYMTAB, Offset: symOff, Size: uint64(len(syms)) * 24, Link: 2, Info: 1, Addralign: 8, Entsize: 24},
			loader.SectionHeader{Name: 9, Type: loader.SHT_STRTAB, Offset: strOff, Size: uint64(len(strtab)), Addralign: 1},
		)
	}
	shstrOff := uint64(body.Len())
	body.Write(shstrtab)
	sections = append(sections, loader.SectionHeader{Name: 17, Type: loader.SHT_STRTAB, Offset: shstrOff, Size: uint64(len(shstrtab)), Addralign: 1})
	pad(&body, 8)
	shoff := uint64(body.Len())
	for i := range sections {
		pack(&body, &sections[i])
	}

	hdr := loader.ElfHeader{
		Magic:     loader.ELF_MAGIC,
		Type:      2,
		Machine:   EM_RISCV,
		Version:   1,
		Entry:     b.Entry,
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     uint16(len(phdrs)),
		Shentsize: 64,
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(len(sections) - 1),
	}
	hdr.Ident[0] = loader.ELFCLASS64
	hdr.Ident[1] = loader.ELFDATA2LSB
	hdr.Ident[2] = 1

	var head bytes.Buffer
	pack(&head, &hdr)
	for i := range phdrs {
		pack(&head, &phdrs[i])
	}
	out := body.Bytes()
	copy(out, head.Bytes())
	return out
}

// Image wraps Bytes in a loader.Image.
func (b *Builder) Image(name string) *loader.Image {
	return loader.NewImage(name, bytes.NewReader(b.Bytes()))
}
