package common

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lunixbochs/argjoy"
)

// UserMem is the trapped process's memory as seen through its page table.
type UserMem interface {
	ReadUser(va uint64, p []byte) error
	WriteUser(va uint64, p []byte) error
}

type KernelBase struct {
	Syscalls map[string]Syscall
	Mem      UserMem
	Argjoy   argjoy.Argjoy
}

func (k *KernelBase) PkeKernel() *KernelBase {
	return k
}

type Kernel interface {
	PkeKernel() *KernelBase
}

func camelToSnakeCase(name string) string {
	var words []string
	last := 0
	for i, c := range name {
		if unicode.IsUpper(c) {
			if i > 0 {
				words = append(words, name[last:i])
			}
			last = i
		}
	}
	words = append(words, name[last:])
	return strings.ToLower(strings.Join(words, "_"))
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Init builds the syscall table from the exported methods of kf. A method
// named UserPrint handles the syscall named user_print.
func Init(kf Kernel) {
	k := kf.PkeKernel()
	k.Syscalls = make(map[string]Syscall)
	instance := reflect.ValueOf(kf)
	typ := instance.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		name := method.Name
		if r, size := utf8.DecodeRuneInString(name); size <= 0 || !unicode.IsUpper(r) {
			continue
		}
		name = camelToSnakeCase(name)
		in := make([]reflect.Type, method.Type.NumIn()-1)
		for j := 1; j < method.Type.NumIn(); j++ {
			in[j-1] = method.Type.In(j)
		}
		out := make([]reflect.Type, method.Type.NumOut())
		for j := 0; j < method.Type.NumOut(); j++ {
			out[j] = method.Type.Out(j)
		}
		k.Syscalls[name] = Syscall{
			Name:     name,
			Kernel:   k,
			Instance: instance,
			Method:   method,
			In:       in,
			Out:      out,
		}
	}
	k.Argjoy.Register(k.commonArgCodec)
	k.Argjoy.Register(argjoy.IntToInt)
}

// Lookup finds the handler for a syscall name, building the table on first use.
func Lookup(kf Kernel, name string) *Syscall {
	k := kf.PkeKernel()
	if k.Syscalls == nil {
		Init(kf)
	}
	if sys, ok := k.Syscalls[name]; ok {
		return &sys
	}
	return nil
}
