package common

import (
	"github.com/lunixbochs/argjoy"
)

func (k *KernelBase) commonArgCodec(arg interface{}, vals []interface{}) error {
	if reg, ok := vals[0].(uint64); ok {
		switch v := arg.(type) {
		case *Buf:
			*v = NewBuf(k, reg)
		case *Len:
			*v = Len(reg)
		case *Ptr:
			*v = Ptr(reg)
		default:
			return argjoy.NoMatch
		}
		return nil
	}
	return argjoy.NoMatch
}
