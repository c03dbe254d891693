package pke

import (
	"bytes"
	"io/ioutil"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pkecore/pkecore/go/kernel/proc"
	"github.com/pkecore/pkecore/go/loader"
	"github.com/pkecore/pkecore/go/loader/elftest"
	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
	"github.com/pkecore/pkecore/go/models/mock"
)

const entry = 0x10080

func program() *elftest.Builder {
	return &elftest.Builder{
		Entry:    entry,
		Segments: []elftest.Segment{{Vaddr: 0x10000, Data: make([]byte, 0x100)}},
		Symbols: []elftest.Symbol{
			{Name: "g", Addr: 0x10000, Size: 0x40},
			{Name: "f", Addr: 0x10040, Size: 0x40},
			{Name: "main", Addr: 0x10080, Size: 0x80},
		},
	}
}

type machine struct {
	k    *Kernel
	hart *mock.Hart
	pm   *cpu.PhysMem
	out  *bytes.Buffer
}

func boot(t *testing.T, steps ...mock.Step) *machine {
	cfg := models.DefaultConfig()
	cfg.PhysMemSize = 256 * cpu.PGSIZE
	out := &bytes.Buffer{}
	cfg.Output = out
	cfg.Log = logrus.New()
	cfg.Log.Out = ioutil.Discard
	pm, err := cpu.NewPhysMem(cfg.PhysMemSize)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pm.Close() })
	hart := mock.NewHart(steps...)
	return &machine{k: New(cfg, pm, hart), hart: hart, pm: pm, out: out}
}

func (m *machine) load(t *testing.T) *proc.Process {
	p, err := m.k.LoadImage(program().Image("app"))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func exitCode(t *testing.T, err error) int {
	var status models.ExitStatus
	if !errors.As(err, &status) {
		t.Fatalf("Run() = %v, want an exit status", err)
	}
	return int(status)
}

func TestRunProgram(t *testing.T) {
	var m *machine
	var block uint64
	steps := []mock.Step{
		func(h *mock.Hart, tf *models.Trapframe) error {
			if h.PC != entry {
				t.Errorf("entered user mode at %#x, want %#x", h.PC, entry)
			}
			msg := []byte("hello world\n")
			sp := tf.SP() - 64
			if err := m.k.Current().WriteUser(sp, msg); err != nil {
				return err
			}
			h.Ecall(tf, SYS_user_print, sp, uint64(len(msg)))
			return nil
		},
		func(h *mock.Hart, tf *models.Trapframe) error {
			if h.PC != entry+4 {
				t.Errorf("resumed at %#x, want %#x", h.PC, entry+4)
			}
			h.Ecall(tf, SYS_user_allocate_page, 100)
			return nil
		},
		func(h *mock.Hart, tf *models.Trapframe) error {
			block = tf.Reg(cpu.REG_A0)
			h.Ecall(tf, SYS_user_free_page, block+8)
			return nil
		},
		func(h *mock.Hart, tf *models.Trapframe) error {
			h.Ecall(tf, SYS_user_exit, 7)
			return nil
		},
	}
	m = boot(t, steps...)
	p := m.load(t)
	err := m.k.Run(p)
	if code := exitCode(t, err); code != 7 {
		t.Fatalf("exit code %d, want 7", code)
	}
	if got := m.out.String(); got != "hello world\nUser exit with code:7.\n" {
		t.Fatalf("console = %q", got)
	}
	if block != models.DefaultConfig().HeapBase+24 {
		t.Errorf("allocated block at %#x", block)
	}
	if len(p.Heap.Used()) != 0 {
		t.Errorf("block still in use after free: %v", p.Heap.Used())
	}
	for _, satp := range m.hart.Satps {
		if satp != p.Satp() {
			t.Fatalf("sret with satp %#x, want %#x", satp, p.Satp())
		}
	}
	if len(m.hart.Satps) != 4 {
		t.Fatalf("%d user mode entries, want 4", len(m.hart.Satps))
	}
}

func TestSwitchToState(t *testing.T) {
	var m *machine
	m = boot(t, func(h *mock.Hart, tf *models.Trapframe) error {
		status, _ := h.ReadCSR(cpu.CSR_SSTATUS)
		if status&cpu.SSTATUS_SPP != 0 || status&cpu.SSTATUS_SPIE == 0 {
			t.Errorf("sstatus %#x", status)
		}
		if stvec, _ := h.ReadCSR(cpu.CSR_STVEC); stvec != TrapVector {
			t.Errorf("stvec %#x", stvec)
		}
		p := m.k.Current()
		if tf.KernelSP != p.KStack || tf.KernelTrap != TrapHandler || tf.KernelSatp != 0 {
			t.Errorf("trapframe kernel fields %#x %#x %#x", tf.KernelSP, tf.KernelTrap, tf.KernelSatp)
		}
		h.Ecall(tf, SYS_user_exit, 0)
		return nil
	})
	// SPP left set by an earlier supervisor entry
	m.hart.WriteCSR(cpu.CSR_SSTATUS, cpu.SSTATUS_SPP)
	if code := exitCode(t, m.k.Run(m.load(t))); code != 0 {
		t.Fatalf("exit code %d", code)
	}
}

// frames writes a frame chain onto the user stack, one frame per return
// address after the syscall stub's, and points s0 at the stub frame.
func frames(t *testing.T, p *proc.Process, tf *models.Trapframe, ras ...uint64) {
	top := tf.SP()
	stub := top - 0x200
	fp := top - 0x100
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(p.PageTable.WriteUint64(stub-8, fp))
	for i, ra := range ras {
		next := fp + 0x20
		if i == len(ras)-1 {
			// the outermost frame links below itself, into unmapped memory
			next = 0x5000
		}
		must(p.PageTable.WriteUint64(fp-8, ra))
		must(p.PageTable.WriteUint64(fp-16, next))
		fp = next
	}
	tf.SetReg(cpu.REG_S0, stub)
}

func TestPrintBacktrace(t *testing.T) {
	var m *machine
	var status []uint64
	m = boot(t,
		func(h *mock.Hart, tf *models.Trapframe) error {
			frames(t, m.k.Current(), tf, 0x10010, 0x10050, 0x10090)
			h.Ecall(tf, SYS_user_print_backtrace, 2)
			return nil
		},
		func(h *mock.Hart, tf *models.Trapframe) error {
			status = append(status, tf.Reg(cpu.REG_A0))
			h.Ecall(tf, SYS_user_print_backtrace, 10)
			return nil
		},
		func(h *mock.Hart, tf *models.Trapframe) error {
			status = append(status, tf.Reg(cpu.REG_A0))
			// a return address outside every function, then a chain off the stack
			frames(t, m.k.Current(), tf, 0x10010, 0x20000)
			h.Ecall(tf, SYS_user_print_backtrace, 10)
			return nil
		},
		func(h *mock.Hart, tf *models.Trapframe) error {
			status = append(status, tf.Reg(cpu.REG_A0))
			h.Ecall(tf, SYS_user_exit, 0)
			return nil
		},
	)
	exitCode(t, m.k.Run(m.load(t)))
	want := "g\nf\n" + "g\nf\nmain\n" + "g\n<unresolved 0x20000>\n" + "User exit with code:0.\n"
	if diff := cmp.Diff(want, m.out.String()); diff != "" {
		t.Fatalf("console (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{0, 0, failed}, status); diff != "" {
		t.Fatalf("syscall status (-want +got):\n%s", diff)
	}
}

func TestUnknownSyscall(t *testing.T) {
	m := boot(t, func(h *mock.Hart, tf *models.Trapframe) error {
		h.Ecall(tf, 1000)
		return nil
	})
	err := m.k.Run(m.load(t))
	if errors.Cause(err) != models.ErrUnknownSyscall {
		t.Fatalf("Run() = %v", err)
	}
	if models.Classify(err) != models.ClassLogic {
		t.Fatalf("classified as %s", models.Classify(err))
	}
}

func TestUnexpectedTrap(t *testing.T) {
	m := boot(t, func(h *mock.Hart, tf *models.Trapframe) error {
		h.Fault(cpu.CAUSE_LOAD_PAGE_FAULT, 0xdead0000)
		return nil
	})
	if err := m.k.Run(m.load(t)); errors.Cause(err) != models.ErrTrap {
		t.Fatalf("Run() = %v", err)
	}
}

func TestPrintOversizedBuffer(t *testing.T) {
	m := boot(t, func(h *mock.Hart, tf *models.Trapframe) error {
		h.Ecall(tf, SYS_user_print, tf.SP()-64, 1<<62)
		return nil
	})
	err := m.k.Run(m.load(t))
	var merr *cpu.MemError
	if !errors.As(err, &merr) {
		t.Fatalf("Run() = %v, want a memory error", err)
	}
	if models.Classify(err) != models.ClassLogic {
		t.Fatalf("classified as %s", models.Classify(err))
	}
	if m.out.Len() != 0 {
		t.Fatalf("console = %q", m.out.String())
	}
}

func TestAllocateExhausted(t *testing.T) {
	m := boot(t, func(h *mock.Hart, tf *models.Trapframe) error {
		h.Ecall(tf, SYS_user_allocate_page, 1<<20)
		return nil
	})
	err := m.k.Run(m.load(t))
	if errors.Cause(err) != models.ErrNoMem || models.Classify(err) != models.ClassResource {
		t.Fatalf("Run() = %v", err)
	}
}

func TestFreeUnknownAddress(t *testing.T) {
	m := boot(t, func(h *mock.Hart, tf *models.Trapframe) error {
		h.Ecall(tf, SYS_user_free_page, 0x400100)
		return nil
	})
	if err := m.k.Run(m.load(t)); errors.Cause(err) != models.ErrInvariant {
		t.Fatalf("Run() = %v", err)
	}
}

func TestLoadBadImage(t *testing.T) {
	m := boot(t)
	img := program().Bytes()
	img[0] = 0
	_, err := m.k.LoadImage(rawImage(img))
	if errors.Cause(err) != models.ErrNotElf {
		t.Fatalf("LoadImage() = %v", err)
	}
	if m.pm.Pages() != 0 {
		t.Fatalf("%d pages allocated for a rejected image", m.pm.Pages())
	}
	if _, err := m.k.LoadUserProgram("/nonexistent/app"); models.Classify(err) != models.ClassIO {
		t.Fatalf("LoadUserProgram() = %v", err)
	}
}

func TestHeapExtentsAdvance(t *testing.T) {
	m := boot(t)
	cfg := m.k.Config()
	a, b := m.load(t), m.load(t)
	if a.Heap.Extent().Start != cfg.HeapBase || b.Heap.Extent().Start != cfg.HeapBase+cfg.HeapSize {
		t.Fatalf("heaps at %s and %s", a.Heap.Extent(), b.Heap.Extent())
	}
}

func TestSyscallName(t *testing.T) {
	if name, err := SyscallName(SYS_user_print_backtrace); err != nil || name != "user_print_backtrace" {
		t.Fatalf("SyscallName() = %q, %v", name, err)
	}
	if _, err := SyscallName(63); errors.Cause(err) != models.ErrUnknownSyscall {
		t.Fatalf("SyscallName(63) = %v", err)
	}
}

func rawImage(p []byte) *loader.Image {
	return loader.NewImage("app", bytes.NewReader(p))
}
