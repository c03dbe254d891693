package loader

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
)

// AddressSpace is what Load needs from the process it loads into.
type AddressSpace interface {
	AllocPage() (uint64, error)
	MapPage(va, pa uint64, prot int) error
	Translate(va uint64) (uint64, bool)
	WriteUser(va uint64, p []byte) error
	SetEntry(pc uint64)
}

// Context holds the header of the image being loaded and the section
// locations symbol lookups need later on.
type Context struct {
	img *Image
	hdr ElfHeader

	segments []models.SegmentData

	scanned  bool
	symtab   *SectionHeader
	strtab   *SectionHeader
	symCache []models.Symbol
}

// NewContext reads and validates the ELF header of img.
func NewContext(img *Image) (*Context, error) {
	c := &Context{img: img}
	if err := img.unpack(0, ehdrSize, &c.hdr); err != nil {
		return nil, errors.Wrap(err, "reading ELF header")
	}
	if c.hdr.Magic != ELF_MAGIC {
		return nil, errors.Wrapf(models.ErrNotElf, "%s: bad magic %#x", img.Name, c.hdr.Magic)
	}
	if c.hdr.Class() != ELFCLASS64 {
		return nil, errors.Wrapf(models.ErrNotElf, "%s: ELF class %d is not 64-bit", img.Name, c.hdr.Class())
	}
	if c.hdr.Phnum > 0 && c.hdr.Phentsize < phdrSize {
		return nil, errors.Wrapf(models.ErrNotElf, "%s: program header entries of %d bytes", img.Name, c.hdr.Phentsize)
	}
	if c.hdr.Shnum > 0 && c.hdr.Shentsize < shdrSize {
		return nil, errors.Wrapf(models.ErrNotElf, "%s: section header entries of %d bytes", img.Name, c.hdr.Shentsize)
	}
	return c, nil
}

func (c *Context) Image() *Image     { return c.img }
func (c *Context) Header() ElfHeader { return c.hdr }
func (c *Context) Entry() uint64     { return c.hdr.Entry }

// Segments returns the loadable segments found by Load.
func (c *Context) Segments() []models.SegmentData { return c.segments }

func (c *Context) progHeader(i int) (ProgHeader, error) {
	var ph ProgHeader
	off := c.hdr.Phoff + uint64(i)*uint64(c.hdr.Phentsize)
	err := c.img.unpack(off, phdrSize, &ph)
	return ph, errors.Wrapf(err, "reading program header %d", i)
}

func (c *Context) sectionHeader(i int) (SectionHeader, error) {
	var sh SectionHeader
	off := c.hdr.Shoff + uint64(i)*uint64(c.hdr.Shentsize)
	err := c.img.unpack(off, shdrSize, &sh)
	return sh, errors.Wrapf(err, "reading section header %d", i)
}

// ProgHeaders reads the whole program header table.
func (c *Context) ProgHeaders() ([]ProgHeader, error) {
	out := make([]ProgHeader, 0, c.hdr.Phnum)
	for i := 0; i < int(c.hdr.Phnum); i++ {
		ph, err := c.progHeader(i)
		if err != nil {
			return nil, err
		}
		out = append(out, ph)
	}
	return out, nil
}

// Load maps every PT_LOAD segment into as, copies its file bytes, and sets
// the entry point. Section locations are cached for later symbol lookups.
func (c *Context) Load(as AddressSpace) error {
	phdrs, err := c.ProgHeaders()
	if err != nil {
		return err
	}
	c.segments = c.segments[:0]
	for i, ph := range phdrs {
		if ph.Type != PT_LOAD {
			continue
		}
		if err := c.loadSegment(as, &ph); err != nil {
			return errors.Wrapf(err, "loading segment %d", i)
		}
		c.segments = append(c.segments, models.SegmentData{
			Off:      ph.Off,
			Addr:     ph.Vaddr,
			FileSize: ph.Filesz,
			MemSize:  ph.Memsz,
			Prot:     ph.Prot(),
		})
	}
	as.SetEntry(c.hdr.Entry)
	return c.scanSections()
}

func (c *Context) loadSegment(as AddressSpace, ph *ProgHeader) error {
	if ph.Memsz < ph.Filesz {
		return errors.Wrapf(models.ErrNotElf, "memsz %#x < filesz %#x", ph.Memsz, ph.Filesz)
	}
	if ph.Memsz == 0 {
		return nil
	}
	end := ph.Vaddr + ph.Memsz
	if end < ph.Vaddr {
		return errors.Wrapf(models.ErrNotElf, "segment at %#x wraps", ph.Vaddr)
	}
	prot := ph.Prot()
	for va := ph.Vaddr &^ (cpu.PGSIZE - 1); va < end; va += cpu.PGSIZE {
		// segments may share a page at their boundary
		if _, ok := as.Translate(va); ok {
			continue
		}
		pa, err := as.AllocPage()
		if err != nil {
			return err
		}
		if err := as.MapPage(va, pa, prot); err != nil {
			return err
		}
	}
	buf := make([]byte, cpu.PGSIZE)
	for done := uint64(0); done < ph.Filesz; {
		n := ph.Filesz - done
		if n > cpu.PGSIZE {
			n = cpu.PGSIZE
		}
		if err := c.img.ReadAt(buf[:n], ph.Off+done); err != nil {
			return err
		}
		if err := as.WriteUser(ph.Vaddr+done, buf[:n]); err != nil {
			return err
		}
		done += n
	}
	zero := make([]byte, cpu.PGSIZE)
	for va := ph.Vaddr + ph.Filesz; va < end; {
		n := end - va
		if n > cpu.PGSIZE {
			n = cpu.PGSIZE
		}
		if err := as.WriteUser(va, zero[:n]); err != nil {
			return err
		}
		va += n
	}
	return nil
}

// scanSections finds the symbol table and the string table that is not the
// section name table. Later matches win.
func (c *Context) scanSections() error {
	c.symtab, c.strtab, c.symCache = nil, nil, nil
	for i := 0; i < int(c.hdr.Shnum); i++ {
		sh, err := c.sectionHeader(i)
		if err != nil {
			return err
		}
		switch {
		case sh.Type == SHT_SYMTAB:
			c.symtab = &sh
		case sh.Type == SHT_STRTAB && i != int(c.hdr.Shstrndx):
			c.strtab = &sh
		}
	}
	c.scanned = true
	return nil
}

// Symbols returns the function symbols of the image in table order.
func (c *Context) Symbols() ([]models.Symbol, error) {
	if c.symCache != nil {
		return c.symCache, nil
	}
	if !c.scanned {
		if err := c.scanSections(); err != nil {
			return nil, err
		}
	}
	if c.symtab == nil || c.strtab == nil {
		return nil, errors.Wrap(models.ErrNoSymtab, c.img.Name)
	}
	strs, err := c.img.ReadBytes(c.strtab.Offset, c.strtab.Size)
	if err != nil {
		return nil, errors.Wrap(err, "reading string table")
	}
	if err := c.img.checkRange(c.symtab.Offset, c.symtab.Size); err != nil {
		return nil, errors.Wrap(err, "reading symbol table")
	}
	entsize := c.symtab.Entsize
	if entsize < symSize {
		entsize = symSize
	}
	count := c.symtab.Size / entsize
	syms := []models.Symbol{}
	for i := uint64(0); i < count; i++ {
		var sym Sym
		if err := c.img.unpack(c.symtab.Offset+i*entsize, symSize, &sym); err != nil {
			return nil, errors.Wrapf(err, "reading symbol %d", i)
		}
		if sym.Type() != STT_FUNC {
			continue
		}
		syms = append(syms, models.Symbol{
			Name:  cstring(strs, sym.Name),
			Start: sym.Value,
			Size:  sym.Size,
		})
	}
	c.symCache = syms
	return syms, nil
}

func cstring(tab []byte, off uint32) string {
	if int(off) >= len(tab) {
		return ""
	}
	s := tab[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}

// Lookup returns the first function symbol, in table order, containing addr.
func (c *Context) Lookup(addr uint64) (models.Symbol, bool) {
	syms, err := c.Symbols()
	if err != nil {
		return models.Symbol{}, false
	}
	for _, sym := range syms {
		if sym.Contains(addr) {
			return sym, true
		}
	}
	return models.Symbol{}, false
}

// Symbolicate names addr, or marks it unresolved.
func (c *Context) Symbolicate(addr uint64) string {
	if sym, ok := c.Lookup(addr); ok {
		return sym.Name
	}
	return fmt.Sprintf("<unresolved 0x%x>", addr)
}
