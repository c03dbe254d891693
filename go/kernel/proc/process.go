// Package proc holds the process control block of the single user process.
package proc

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/kernel/mm"
	"github.com/pkecore/pkecore/go/loader"
	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
	"github.com/pkecore/pkecore/go/vmm"
)

type Process struct {
	Name string
	// top of the kernel stack page used while handling this process's traps
	KStack    uint64
	PageTable *vmm.PageTable
	Trapframe *models.Trapframe
	Heap      *mm.Heap
	// executable the process was loaded from, for symbol lookups
	Exe *loader.Context

	mem *cpu.PhysMem
}

// New builds an empty address space with a kernel stack and one user stack
// page ending at cfg.StackTop.
func New(pm *cpu.PhysMem, cfg *models.Config) (*Process, error) {
	pt, err := vmm.New(pm)
	if err != nil {
		return nil, err
	}
	p := &Process{
		PageTable: pt,
		Trapframe: &models.Trapframe{},
		Heap:      mm.New(),
		mem:       pm,
	}
	kstack, err := pm.AllocPage()
	if err != nil {
		return nil, errors.Wrap(err, "allocating kernel stack")
	}
	p.KStack = kstack + cpu.PGSIZE

	ustack, err := pm.AllocPage()
	if err != nil {
		return nil, errors.Wrap(err, "allocating user stack")
	}
	if err := p.MapPage(cfg.StackTop-cpu.PGSIZE, ustack, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
		return nil, errors.Wrap(err, "mapping user stack")
	}
	p.Trapframe.SetReg(cpu.REG_SP, cfg.StackTop)
	return p, nil
}

// Satp is the satp value that activates this address space.
func (p *Process) Satp() uint64 { return cpu.MakeSatp(p.PageTable.Root()) }

func (p *Process) AllocPage() (uint64, error) { return p.mem.AllocPage() }

// MapPage maps one user page.
func (p *Process) MapPage(va, pa uint64, prot int) error {
	return p.PageTable.Map(va, cpu.PGSIZE, pa, vmm.ProtToType(prot, true))
}

func (p *Process) Translate(va uint64) (uint64, bool) { return p.PageTable.Translate(va) }

func (p *Process) ReadUser(va uint64, b []byte) error  { return p.PageTable.ReadUser(va, b) }
func (p *Process) WriteUser(va uint64, b []byte) error { return p.PageTable.WriteUser(va, b) }

func (p *Process) ReadUint64(va uint64) (uint64, error) { return p.PageTable.ReadUint64(va) }

func (p *Process) SetEntry(pc uint64) { p.Trapframe.EPC = pc }

// Mappings lists the user pages of the address space in address order.
func (p *Process) Mappings() ([]Mapping, error) {
	var out []Mapping
	err := p.PageTable.Walk(func(va, pa, perm uint64) error {
		if perm&vmm.PTE_U != 0 {
			out = append(out, Mapping{VA: va, PA: pa, Perm: perm})
		}
		return nil
	})
	return out, err
}

type Mapping struct {
	VA, PA, Perm uint64
}

func (m Mapping) String() string {
	return fmt.Sprintf("0x%x -> 0x%x %s", m.VA, m.PA, vmm.PermString(m.Perm))
}

var (
	_ loader.AddressSpace = (*Process)(nil)
	_ mm.Mapper           = (*Process)(nil)
)
