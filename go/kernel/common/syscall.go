package common

import (
	"reflect"

	"github.com/pkg/errors"
)

type Syscall struct {
	Name     string
	Kernel   *KernelBase
	Instance reflect.Value
	Method   reflect.Method
	In       []reflect.Type
	Out      []reflect.Type
}

var uint64Type = reflect.TypeOf(uint64(0))

// Call converts the raw argument registers to the handler's parameter types
// and invokes it. The first result, if it is an integer, is the value
// returned to user mode. A non-nil error result is passed back to the caller.
func (sys Syscall) Call(args []uint64) (uint64, error) {
	if len(args) < len(sys.In) {
		return 0, errors.Errorf("%s: wanted %d arguments, got %d", sys.Name, len(sys.In), len(args))
	}
	converted, err := sys.Kernel.Argjoy.Convert(sys.In, false, args[:len(sys.In)])
	if err != nil {
		return 0, errors.Wrapf(err, "converting arguments to %s", sys.Name)
	}
	in := make([]reflect.Value, len(converted)+1)
	in[0] = sys.Instance
	copy(in[1:], converted)
	out := sys.Method.Func.Call(in)

	var ret uint64
	if len(out) > 0 && out[0].Type().ConvertibleTo(uint64Type) {
		ret = out[0].Convert(uint64Type).Uint()
	}
	if n := len(out); n > 0 && sys.Out[n-1] == errorType && !out[n-1].IsNil() {
		return ret, out[n-1].Interface().(error)
	}
	return ret, nil
}
