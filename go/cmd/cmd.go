package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/subcommands"
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/cpu/unicorn"
	"github.com/pkecore/pkecore/go/kernel/pke"
	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
)

// ConfigArg pulls the config Main passes to every subcommand.
func ConfigArg(args []interface{}) *models.Config {
	if len(args) > 0 {
		if cfg, ok := args[0].(*models.Config); ok {
			return cfg
		}
	}
	return models.DefaultConfig()
}

// Boot brings up RAM, a hart and the kernel.
func Boot(cfg *models.Config) (*pke.Kernel, func(), error) {
	pm, err := cpu.NewPhysMem(cfg.PhysMemSize)
	if err != nil {
		return nil, nil, err
	}
	hart, err := unicorn.New(pm)
	if err != nil {
		pm.Close()
		return nil, nil, err
	}
	k := pke.New(cfg, pm, hart)
	teardown := func() {
		k.Close()
		pm.Close()
	}
	return k, teardown, nil
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError prints err with its failure class, and a stacktrace if one is
// available.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(w, "Error (%s): %s\n", models.Classify(err), err)
	var st stackTracer
	for cur := err; cur != nil; {
		if s, ok := cur.(stackTracer); ok {
			st = s
			break
		}
		c, ok := cur.(interface{ Cause() error })
		if !ok {
			break
		}
		cur = c.Cause()
	}
	if st == nil {
		return
	}
	// parse full path and method name for each stack frame
	var frames [][]string
	for _, f := range st.StackTrace() {
		fullpath := ""
		fileline := fmt.Sprintf("%s:%d", f, f)
		method := fmt.Sprintf("%n", f)

		frame := fmt.Sprintf("%+s", f)
		tmp := strings.SplitN(frame, "\n", 3)
		if len(tmp) == 2 {
			pathsplit := strings.Split(tmp[0], "/")
			method = pathsplit[len(pathsplit)-1]
			fullpath = strings.TrimSpace(tmp[1])
		}
		frames = append(frames, []string{fullpath, fileline, method})
		if method == "main.main" {
			break
		}
	}
	// calculate column widths
	widths := make([]int, 2)
	for _, f := range frames {
		for i := 0; i < 2; i++ {
			if len(f[i]) > widths[i] {
				widths[i] = len(f[i])
			}
		}
	}
	for _, f := range frames {
		for i := 0; i < 2; i++ {
			if widths[i] > 0 {
				pad := strings.Repeat(" ", widths[i]-len(f[i]))
				fmt.Fprintf(w, "%s%s | ", f[i], pad)
			}
		}
		fmt.Fprintf(w, "%s()\n", f[2])
	}
}

// Exit maps the result of a kernel run onto a process exit status. A user
// exit keeps its code; anything else halted the machine.
func Exit(w io.Writer, err error) subcommands.ExitStatus {
	var status models.ExitStatus
	if errors.As(err, &status) {
		return subcommands.ExitStatus(status)
	}
	if err != nil {
		PrintError(w, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
