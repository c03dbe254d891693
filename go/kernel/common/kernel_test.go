package common

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
)

type flatMem map[uint64]byte

func (m flatMem) ReadUser(va uint64, p []byte) error {
	for i := range p {
		b, ok := m[va+uint64(i)]
		if !ok {
			return &cpu.MemError{Addr: va + uint64(i), Enum: cpu.MEM_READ_UNMAPPED}
		}
		p[i] = b
	}
	return nil
}

func (m flatMem) WriteUser(va uint64, p []byte) error {
	for i, b := range p {
		m[va+uint64(i)] = b
	}
	return nil
}

type testKernel struct {
	KernelBase
	exitCode int
	printed  string
}

func (k *testKernel) UserExit(code int) (uint64, error) {
	k.exitCode = code
	return 0, models.ExitStatus(code)
}

func (k *testKernel) UserPrint(buf Buf, n Len) uint64 {
	p, err := buf.Read(n)
	if err != nil {
		return ^uint64(0)
	}
	k.printed += string(p)
	return 0
}

func newTestKernel() *testKernel {
	k := &testKernel{}
	k.Mem = flatMem{}
	Init(k)
	return k
}

func TestCamelToSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"UserPrint":          "user_print",
		"UserPrintBacktrace": "user_print_backtrace",
		"Exit":               "exit",
	} {
		if got := camelToSnakeCase(in); got != want {
			t.Errorf("camelToSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKernel(t *testing.T) {
	k := newTestKernel()
	ret, err := Lookup(k, "user_exit").Call([]uint64{43, 0, 0})
	if k.exitCode != 43 {
		t.Fatal("Syscall failed.")
	}
	if ret != 0 {
		t.Fatal("Syscall return failed.")
	}
	var status models.ExitStatus
	if !errors.As(err, &status) || int(status) != 43 {
		t.Fatalf("error %v is not exit status 43", err)
	}
	if Lookup(k, "user_fork") != nil {
		t.Fatal("found a syscall that does not exist")
	}
}

func TestBufArgs(t *testing.T) {
	k := newTestKernel()
	k.Mem.WriteUser(0x1000, []byte("hello world\n"))
	sys := Lookup(k, "user_print")
	ret, err := sys.Call([]uint64{0x1000, 12})
	if err != nil || ret != 0 {
		t.Fatalf("Call() = %d, %v", ret, err)
	}
	if k.printed != "hello world\n" {
		t.Fatalf("printed %q", k.printed)
	}
	if got := sys.Trace([]uint64{0x1000, 5}); got != `user_print("hello", 0x5)` {
		t.Fatalf("Trace() = %s", got)
	}
	if ret, _ := sys.Call([]uint64{0x2000, 4}); ret != ^uint64(0) {
		t.Fatalf("read of unmapped buffer returned %d", ret)
	}
	if _, err := sys.Call([]uint64{0x1000}); err == nil {
		t.Fatal("short argument list accepted")
	}
}

func TestSyscallArgs(t *testing.T) {
	tf := &models.Trapframe{}
	for r := cpu.REG_A0; r <= cpu.REG_A7; r++ {
		tf.SetReg(r, uint64(r))
	}
	num, args := SyscallArgs(tf)
	if num != cpu.REG_A0 || len(args) != 7 || args[0] != cpu.REG_A1 || args[6] != cpu.REG_A7 {
		t.Fatalf("SyscallArgs() = %d, %v", num, args)
	}
}

func TestBufReadBounds(t *testing.T) {
	k := newTestKernel()
	text := make([]byte, 3*cpu.PGSIZE)
	for i := range text {
		text[i] = byte('a' + i%26)
	}
	base := uint64(0x10000 - 100)
	k.Mem.WriteUser(base, text)
	buf := NewBuf(k, base)
	p, err := buf.Read(Len(len(text)))
	if err != nil || string(p) != string(text) {
		t.Fatalf("cross-page Read() = %d bytes, %v", len(p), err)
	}
	for _, n := range []uint64{1 << 62, ^uint64(0), uint64(len(text)) + 1} {
		_, err := buf.Read(Len(n))
		var merr *cpu.MemError
		if !errors.As(err, &merr) {
			t.Errorf("Read(%#x) = %v, want MemError", n, err)
		}
	}
}
