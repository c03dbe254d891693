// Package run boots the kernel on a program and runs it to exit.
package run

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/pkecore/pkecore/go/cmd"
)

type Run struct {
	heapSize uint64
}

func (*Run) Name() string     { return "run" }
func (*Run) Synopsis() string { return "boot the kernel and run a user program" }
func (*Run) Usage() string {
	return "run [flags] <elf> - load a RISC-V64 program and run it until it exits.\n"
}

func (r *Run) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&r.heapSize, "heap", 0, "user heap size in bytes (default from config)")
}

func (r *Run) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg := cmd.ConfigArg(args)
	if r.heapSize != 0 {
		cfg.HeapSize = r.heapSize
		if err := cfg.Validate(); err != nil {
			cmd.PrintError(os.Stderr, err)
			return subcommands.ExitUsageError
		}
	}
	k, teardown, err := cmd.Boot(cfg)
	if err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	defer teardown()
	p, err := k.LoadUserProgram(f.Arg(0))
	if err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	return cmd.Exit(os.Stderr, k.Run(p))
}

func init() { cmd.Register(&Run{}) }
