package common

import (
	"fmt"
	"strconv"
	"strings"
)

// longest user buffer shown in a trace line
const traceStrsize = 30

func (s Syscall) traceArg(args ...interface{}) string {
	switch arg := args[0].(type) {
	case Buf:
		if len(args) > 1 {
			if length, ok := args[1].(Len); ok {
				if length > traceStrsize {
					length = traceStrsize
				}
				if mem, err := arg.Read(length); err == nil {
					return strconv.Quote(string(mem))
				}
			}
		}
		return fmt.Sprintf("0x%x", arg.Addr)
	case Ptr, uint64, Len:
		return fmt.Sprintf("0x%x", arg)
	default:
		return fmt.Sprintf("%v", arg)
	}
}

func (s Syscall) traceArgs(regs []uint64) string {
	if len(regs) < len(s.In) {
		return "?"
	}
	inRef, err := s.Kernel.Argjoy.Convert(s.In, false, regs[:len(s.In)])
	if err != nil {
		return err.Error()
	}
	in := make([]interface{}, len(inRef))
	for i, val := range inRef {
		in[i] = val.Interface()
	}
	ret := make([]string, len(in))
	for i := range in {
		ret[i] = s.traceArg(in[i:]...)
	}
	return strings.Join(ret, ", ")
}

// Trace renders a call the way strace would.
func (s Syscall) Trace(regs []uint64) string {
	return fmt.Sprintf("%s(%s)", s.Name, s.traceArgs(regs))
}

func (s Syscall) TraceRet(ret uint64) string {
	return fmt.Sprintf(" = %#x", ret)
}
