// Package inspect prints what the loader sees in a program without running it.
package inspect

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"github.com/mgutz/ansi"

	"github.com/pkecore/pkecore/go/cmd"
	"github.com/pkecore/pkecore/go/kernel/proc"
	"github.com/pkecore/pkecore/go/loader"
	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
)

type Symbols struct{}

func (*Symbols) Name() string           { return "symbols" }
func (*Symbols) Synopsis() string       { return "list the function symbols of a program" }
func (*Symbols) Usage() string          { return "symbols <elf>\n" }
func (*Symbols) SetFlags(*flag.FlagSet) {}

func (*Symbols) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	img, err := loader.OpenImage(f.Arg(0))
	if err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	defer img.Close()
	ctx, err := loader.NewContext(img)
	if err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	syms, err := ctx.Symbols()
	if err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', 0)
	for _, s := range syms {
		fmt.Fprintf(w, "0x%x\t%d\t%s\n", s.Start, s.Size, s.Name)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type Segments struct{}

func (*Segments) Name() string           { return "segments" }
func (*Segments) Synopsis() string       { return "load a program and show its segments and user mappings" }
func (*Segments) Usage() string          { return "segments <elf>\n" }
func (*Segments) SetFlags(*flag.FlagSet) {}

func (*Segments) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg := cmd.ConfigArg(args)
	img, err := loader.OpenImage(f.Arg(0))
	if err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	defer img.Close()
	pm, err := cpu.NewPhysMem(cfg.PhysMemSize)
	if err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	defer pm.Close()
	ctx, err := loader.NewContext(img)
	if err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	p, err := proc.New(pm, cfg)
	if err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	if err := ctx.Load(p); err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	printSegments(cfg, ctx.Segments())
	maps, err := p.Mappings()
	if err != nil {
		return cmd.Exit(os.Stderr, err)
	}
	fmt.Printf("entry 0x%x, %d user pages\n", ctx.Entry(), len(maps))
	for _, m := range maps {
		fmt.Println(m)
	}
	return subcommands.ExitSuccess
}

func printSegments(cfg *models.Config, segs []models.SegmentData) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', 0)
	header := "vaddr\tfilesz\tmemsz\tprot"
	if cfg.Color {
		header = ansi.Color(header, "default+b")
	}
	fmt.Fprintln(w, header)
	for _, s := range segs {
		fmt.Fprintf(w, "0x%x\t0x%x\t0x%x\t%s\n", s.Addr, s.FileSize, s.MemSize, protString(s.Prot))
	}
	w.Flush()
}

func protString(prot int) string {
	out := []byte("---")
	for i, bit := range []int{cpu.PROT_READ, cpu.PROT_WRITE, cpu.PROT_EXEC} {
		if prot&bit != 0 {
			out[i] = "rwx"[i]
		}
	}
	return string(out)
}

func init() {
	cmd.Register(&Symbols{})
	cmd.Register(&Segments{})
}
