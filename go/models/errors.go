package models

import (
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models/cpu"
)

// I/O failures
var ErrIO = errors.New("short read from image")

// format failures
var (
	ErrNotElf   = errors.New("not a recognized executable")
	ErrNoSymtab = errors.New("executable has no symbol table")
)

// resource exhaustion
var ErrNoMem = errors.New("no free region large enough")

// logic and invariant failures
var (
	ErrInvariant      = errors.New("invariant violated")
	ErrUnknownSyscall = errors.New("unknown syscall")
	ErrTrap           = errors.New("unexpected trap")
)

type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassIO
	ClassFormat
	ClassResource
	ClassLogic
)

func (c ErrorClass) String() string {
	switch c {
	case ClassIO:
		return "io"
	case ClassFormat:
		return "format"
	case ClassResource:
		return "resource"
	case ClassLogic:
		return "logic"
	}
	return "none"
}

// Classify maps an error chain onto the kernel's failure taxonomy.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	switch errors.Cause(err) {
	case ErrIO:
		return ClassIO
	case ErrNotElf, ErrNoSymtab:
		return ClassFormat
	case ErrNoMem, cpu.ErrOutOfPages:
		return ClassResource
	}
	return ClassLogic
}
