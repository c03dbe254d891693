// Package unicorn runs user mode on a Unicorn RISC-V64 core.
//
// Unicorn executes the user program; the supervisor side of the hart (CSRs,
// sret, trap entry) is modeled here. User pages are mapped into the engine
// at their virtual addresses, sharing host memory with the physical arena,
// so kernel writes through the page table are seen by user code at once.
package unicorn

import (
	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
	"github.com/pkecore/pkecore/go/vmm"
)

// exception numbers Unicorn reports for ecall, by the privilege it ran in
var ecallCauses = map[uint32]bool{8: true, 9: true, 11: true}

type mapping struct {
	va, pa uint64
	prot   int
}

type Hart struct {
	uc  uc.Unicorn
	mem *cpu.PhysMem
	csr *cpu.Regs

	satp   uint64
	mapped []mapping

	trapped bool
	cause   uint64
	tval    uint64
}

func New(mem *cpu.PhysMem) (*Hart, error) {
	u, err := uc.NewUnicorn(uc.ARCH_RISCV, uc.MODE_RISCV64)
	if err != nil {
		return nil, errors.Wrap(err, "NewUnicorn() failed")
	}
	h := &Hart{uc: u, mem: mem, csr: cpu.NewRegs(64, cpu.CSRs)}
	if _, err := u.HookAdd(uc.HOOK_INTR, func(_ uc.Unicorn, intno uint32) {
		if ecallCauses[intno] {
			h.trap(cpu.CAUSE_USER_ECALL, 0)
		} else {
			h.trap(uint64(intno), 0)
		}
	}, 1, 0); err != nil {
		u.Close()
		return nil, errors.Wrap(err, "hooking interrupts")
	}
	if _, err := u.HookAdd(uc.HOOK_MEM_INVALID, func(_ uc.Unicorn, access int, addr uint64, size int, value int64) bool {
		switch access {
		case uc.MEM_FETCH_UNMAPPED, uc.MEM_FETCH_PROT:
			h.trap(cpu.CAUSE_FETCH_PAGE_FAULT, addr)
		case uc.MEM_WRITE_UNMAPPED, uc.MEM_WRITE_PROT:
			h.trap(cpu.CAUSE_STORE_PAGE_FAULT, addr)
		default:
			h.trap(cpu.CAUSE_LOAD_PAGE_FAULT, addr)
		}
		return false
	}, 1, 0); err != nil {
		u.Close()
		return nil, errors.Wrap(err, "hooking faults")
	}
	return h, nil
}

func (h *Hart) ReadCSR(csr int) (uint64, error)    { return h.csr.RegRead(csr) }
func (h *Hart) WriteCSR(csr int, val uint64) error { return h.csr.RegWrite(csr, val) }

func (h *Hart) trap(cause, tval uint64) {
	h.trapped = true
	h.cause, h.tval = cause, tval
	h.uc.Stop()
}

// activate mirrors the user mappings of the table at satp into the engine.
func (h *Hart) activate(satp uint64) error {
	for _, m := range h.mapped {
		if err := h.uc.MemUnmap(m.va, cpu.PGSIZE); err != nil {
			return errors.Wrapf(err, "unmapping %#x", m.va)
		}
	}
	h.mapped = h.mapped[:0]
	pt := vmm.Attach(h.mem, (satp&(1<<44-1))<<cpu.PGSHIFT)
	err := pt.Walk(func(va, pa, perm uint64) error {
		if perm&vmm.PTE_U == 0 {
			return nil
		}
		prot := 0
		if perm&vmm.PTE_R != 0 {
			prot |= uc.PROT_READ
		}
		if perm&vmm.PTE_W != 0 {
			prot |= uc.PROT_WRITE
		}
		if perm&vmm.PTE_X != 0 {
			prot |= uc.PROT_EXEC
		}
		if !h.mem.Contains(pa, cpu.PGSIZE) {
			return errors.Errorf("va %#x maps outside RAM at %#x", va, pa)
		}
		if err := h.uc.MemMapPtr(va, cpu.PGSIZE, prot, h.mem.Ptr(pa)); err != nil {
			return errors.Wrapf(err, "mapping %#x", va)
		}
		h.mapped = append(h.mapped, mapping{va, pa, prot})
		return nil
	})
	h.satp = satp
	return err
}

// Sret enters user mode at sepc with the registers in tf and runs until the
// next trap.
func (h *Hart) Sret(tf *models.Trapframe, satp uint64) error {
	status, _ := h.csr.RegRead(cpu.CSR_SSTATUS)
	if status&cpu.SSTATUS_SPP != 0 {
		return errors.New("sret to supervisor mode is not supported")
	}
	// the page table may have changed since the last entry
	if err := h.activate(satp); err != nil {
		return err
	}
	for i := 1; i < cpu.NUM_REGS; i++ {
		if err := h.uc.RegWrite(uc.RISCV_REG_X0+i, tf.Regs[i]); err != nil {
			return errors.Wrapf(err, "writing %s", cpu.RegNames[i])
		}
	}
	pc, _ := h.csr.RegRead(cpu.CSR_SEPC)
	h.trapped = false
	err := h.uc.Start(pc, 0)
	if !h.trapped {
		if err != nil {
			return errors.Wrap(err, "user mode")
		}
		return errors.New("user mode stopped without a trap")
	}
	for i := 1; i < cpu.NUM_REGS; i++ {
		val, err := h.uc.RegRead(uc.RISCV_REG_X0 + i)
		if err != nil {
			return errors.Wrapf(err, "reading %s", cpu.RegNames[i])
		}
		tf.Regs[i] = val
	}
	epc, err := h.uc.RegRead(uc.RISCV_REG_PC)
	if err != nil {
		return errors.Wrap(err, "reading pc")
	}
	h.csr.RegWrite(cpu.CSR_SEPC, epc)
	h.csr.RegWrite(cpu.CSR_SCAUSE, h.cause)
	h.csr.RegWrite(cpu.CSR_STVAL, h.tval)
	// trap taken from user mode
	h.csr.RegWrite(cpu.CSR_SSTATUS, status&^cpu.SSTATUS_SPP)
	return nil
}

func (h *Hart) Close() error {
	return h.uc.Close()
}

var _ models.Hart = (*Hart)(nil)
