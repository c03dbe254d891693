package backtrace

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
)

type stack map[uint64]uint64

func (s stack) ReadUint64(va uint64) (uint64, error) {
	v, ok := s[va]
	if !ok {
		return 0, &cpu.MemError{Addr: va, Size: 8, Enum: cpu.MEM_READ_UNMAPPED}
	}
	return v, nil
}

type symtab []models.Symbol

func (t symtab) Lookup(addr uint64) (models.Symbol, bool) {
	for _, s := range t {
		if s.Contains(addr) {
			return s, true
		}
	}
	return models.Symbol{}, false
}

var syms = symtab{
	{Name: "print_backtrace", Start: 0x10000, Size: 0x20},
	{Name: "g", Start: 0x10100, Size: 0x40},
	{Name: "f", Start: 0x10200, Size: 0x40},
	{Name: "main", Start: 0x10300, Size: 0x80},
	{Name: "_start", Start: 0x10400, Size: 0x20},
}

// chain lays out stub -> g -> f -> main -> _start frames. Each entry is the
// return address stored in that frame.
func chain(ras ...uint64) (stack, *models.Trapframe) {
	s := stack{}
	fp := uint64(0x7ffff000)
	stub := fp - 0x100
	// the stub frame only links to its caller
	s[stub-8] = fp
	for i, ra := range ras {
		s[fp-8] = ra
		next := fp + 0x20*uint64(i+1)
		s[fp-16] = next
		fp = next
	}
	tf := &models.Trapframe{}
	tf.SetReg(cpu.REG_S0, stub)
	return s, tf
}

func names(frames []Frame) []string {
	var out []string
	for _, f := range frames {
		out = append(out, f.String())
	}
	return out
}

func TestWalkFloors(t *testing.T) {
	mem, tf := chain(0x10110, 0x10210, 0x10310, 0x10410)
	frames, err := Walk(mem, syms, tf, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"g", "f"}, names(frames)); diff != "" {
		t.Fatalf("frames (-want +got):\n%s", diff)
	}
}

func TestWalkStopsAtMain(t *testing.T) {
	mem, tf := chain(0x10110, 0x10210, 0x10310, 0x10410)
	frames, err := Walk(mem, syms, tf, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"g", "f", "main"}, names(frames)); diff != "" {
		t.Fatalf("frames (-want +got):\n%s", diff)
	}
}

func TestWalkZeroFloors(t *testing.T) {
	frames, err := Walk(stack{}, syms, &models.Trapframe{}, 0)
	if err != nil || frames != nil {
		t.Fatalf("Walk(0) = %v, %v", frames, err)
	}
}

func TestWalkUnresolved(t *testing.T) {
	mem, tf := chain(0x10110, 0x20000, 0x10310)
	frames, err := Walk(mem, syms, tf, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"g", "<unresolved 0x20000>", "main"}
	if diff := cmp.Diff(want, names(frames)); diff != "" {
		t.Fatalf("frames (-want +got):\n%s", diff)
	}
	if frames[1].Resolved {
		t.Fatal("frame outside every symbol marked resolved")
	}
}

func TestWalkBadFramePointer(t *testing.T) {
	mem, tf := chain(0x10110, 0x10210)
	// f's frame links past the end of the mapped chain
	frames, err := Walk(mem, syms, tf, 4)
	if err == nil {
		t.Fatal("walk off the end of the stack succeeded")
	}
	var merr *cpu.MemError
	if !errors.As(err, &merr) {
		t.Fatalf("error %v does not wrap a MemError", err)
	}
	if diff := cmp.Diff([]string{"g", "f"}, names(frames)); diff != "" {
		t.Fatalf("frames before the fault (-want +got):\n%s", diff)
	}

	if _, err := Walk(stack{}, syms, tf, 1); err == nil {
		t.Fatal("walk with an unreadable leaf frame succeeded")
	}
}

func TestWalkCycle(t *testing.T) {
	mem, tf := chain(0x10110, 0x10210)
	stub := tf.FP()
	fp := mem[stub-8]
	// f's frame links back to g's
	mem[fp+0x20-16] = fp
	frames, err := Walk(mem, syms, tf, ^uint64(0))
	if errors.Cause(err) != models.ErrInvariant {
		t.Fatalf("Walk() = %v, want ErrInvariant", err)
	}
	if diff := cmp.Diff([]string{"g", "f"}, names(frames)); diff != "" {
		t.Fatalf("frames before the loop (-want +got):\n%s", diff)
	}

	// a frame linking to itself
	mem, tf = chain(0x10110)
	fp = mem[tf.FP()-8]
	mem[fp-16] = fp
	if _, err := Walk(mem, syms, tf, ^uint64(0)); errors.Cause(err) != models.ErrInvariant {
		t.Fatalf("self-linked Walk() = %v, want ErrInvariant", err)
	}

	// a leaf link pointing below the stub frame
	mem, tf = chain(0x10110)
	mem[tf.FP()-8] = tf.FP() - 0x40
	if _, err := Walk(mem, syms, tf, 1); errors.Cause(err) != models.ErrInvariant {
		t.Fatalf("descending leaf Walk() = %v, want ErrInvariant", err)
	}
}

func TestPrint(t *testing.T) {
	frames := []Frame{{PC: 0x10110, Name: "g", Resolved: true}, {PC: 0x20000}}
	var buf bytes.Buffer
	Print(&buf, frames, false)
	if got := buf.String(); got != "g\n<unresolved 0x20000>\n" {
		t.Fatalf("Print() = %q", got)
	}
	buf.Reset()
	Print(&buf, frames, true)
	if !bytes.Contains(buf.Bytes(), []byte(unresolvedColor+"<unresolved 0x20000>")) {
		t.Fatalf("unresolved frame not coloured: %q", buf.String())
	}
}
