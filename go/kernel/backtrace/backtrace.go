// Package backtrace walks the frame-pointer chain of a trapped user program.
//
// Each frame keeps the caller's return address at fp-8 and the caller's
// frame pointer at fp-16. The innermost frame belongs to the syscall stub
// and is skipped.
package backtrace

import (
	"fmt"
	"io"

	"github.com/mgutz/ansi"
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models"
)

// StopAt ends a walk once a frame resolves to it.
const StopAt = "main"

type FrameReader interface {
	ReadUint64(va uint64) (uint64, error)
}

type Symbolizer interface {
	Lookup(addr uint64) (models.Symbol, bool)
}

type Frame struct {
	PC       uint64
	Name     string
	Resolved bool
}

func (f Frame) String() string {
	if f.Resolved {
		return f.Name
	}
	return fmt.Sprintf("<unresolved 0x%x>", f.PC)
}

// Walk returns up to floors caller frames above the trap. Frames that no
// function symbol covers are reported unresolved and the walk goes on. A
// frame pointer that cannot be read, or that does not lie above the frame
// linking to it, ends the walk with an error, returning the frames found so
// far.
func Walk(mem FrameReader, syms Symbolizer, tf *models.Trapframe, floors uint64) ([]Frame, error) {
	if floors == 0 {
		return nil, nil
	}
	fp, err := mem.ReadUint64(tf.FP() - 8)
	if err != nil {
		return nil, errors.Wrapf(err, "reading leaf frame at fp %#x", tf.FP())
	}
	if fp <= tf.FP() {
		return nil, errors.Wrapf(models.ErrInvariant, "caller fp %#x not above leaf frame %#x", fp, tf.FP())
	}
	var frames []Frame
	for i := uint64(0); i < floors; i++ {
		ra, err := mem.ReadUint64(fp - 8)
		if err != nil {
			return frames, errors.Wrapf(err, "reading return address at fp %#x", fp)
		}
		frame := Frame{PC: ra}
		if sym, ok := syms.Lookup(ra); ok {
			frame.Name, frame.Resolved = sym.Name, true
		}
		frames = append(frames, frame)
		if frame.Resolved && frame.Name == StopAt {
			break
		}
		next, err := mem.ReadUint64(fp - 16)
		if err != nil {
			return frames, errors.Wrapf(err, "reading caller fp at %#x", fp-16)
		}
		if next <= fp {
			return frames, errors.Wrapf(models.ErrInvariant, "caller fp %#x not above frame %#x", next, fp)
		}
		fp = next
	}
	return frames, nil
}

var unresolvedColor = ansi.ColorCode("red")

// Print writes one frame per line.
func Print(w io.Writer, frames []Frame, color bool) {
	for _, f := range frames {
		if !f.Resolved && color {
			fmt.Fprintf(w, "%s%s%s\n", unresolvedColor, f, ansi.Reset)
		} else {
			fmt.Fprintln(w, f)
		}
	}
}
