// Package pke is the supervisor: it boots one user program on a hart and
// services its traps until it exits.
package pke

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	co "github.com/pkecore/pkecore/go/kernel/common"
	"github.com/pkecore/pkecore/go/kernel/proc"
	"github.com/pkecore/pkecore/go/loader"
	"github.com/pkecore/pkecore/go/models"
	"github.com/pkecore/pkecore/go/models/cpu"
)

// Addresses of the supervisor trap path. Harts enter TrapVector on any trap
// from user mode; it saves user registers and calls TrapHandler.
const (
	TrapVector  = cpu.DRAM_BASE
	TrapHandler = cpu.DRAM_BASE + 0x100
)

type Kernel struct {
	co.KernelBase

	cfg  *models.Config
	pm   *cpu.PhysMem
	hart models.Hart
	log  *logrus.Logger

	current *proc.Process
	// next unused user heap extent
	freeBase uint64
}

func New(cfg *models.Config, pm *cpu.PhysMem, hart models.Hart) *Kernel {
	k := &Kernel{
		cfg:      cfg,
		pm:       pm,
		hart:     hart,
		log:      cfg.Logger(),
		freeBase: cfg.HeapBase,
	}
	co.Init(k)
	return k
}

func (k *Kernel) Config() *models.Config { return k.cfg }

// Current is the process running on the hart, if any.
func (k *Kernel) Current() *proc.Process { return k.current }

// LoadUserProgram loads the executable at path into a new process.
func (k *Kernel) LoadUserProgram(path string) (*proc.Process, error) {
	img, err := loader.OpenImage(path)
	if err != nil {
		return nil, errors.Wrap(models.ErrIO, err.Error())
	}
	p, err := k.LoadImage(img)
	if err != nil {
		img.Close()
		return nil, err
	}
	return p, nil
}

// LoadImage validates img, builds a process for it, loads its segments and
// gives it a heap. Nothing is allocated for an image that is not an ELF64
// executable.
func (k *Kernel) LoadImage(img *loader.Image) (*proc.Process, error) {
	k.log.WithField("image", img.Name).Info("User application is loading.")
	ctx, err := loader.NewContext(img)
	if err != nil {
		return nil, err
	}
	p, err := proc.New(k.pm, k.cfg)
	if err != nil {
		return nil, err
	}
	p.Name = img.Name
	p.Exe = ctx
	if err := ctx.Load(p); err != nil {
		return nil, errors.Wrapf(err, "loading %s", img.Name)
	}
	if err := p.Heap.Init(p, k.freeBase, k.cfg.HeapSize); err != nil {
		return nil, err
	}
	k.freeBase += k.cfg.HeapSize
	k.log.WithFields(logrus.Fields{
		"entry": hex(p.Trapframe.EPC),
		"heap":  p.Heap.Extent().String(),
	}).Info("Application program loaded.")
	return p, nil
}

// Run enters p and services its traps until it exits or something fatal
// happens. A clean exit is reported as a models.ExitStatus error.
func (k *Kernel) Run(p *proc.Process) error {
	k.log.Info("Switch to user mode...")
	var last models.Trapframe
	for {
		last = *p.Trapframe
		err := k.SwitchTo(p)
		if err == nil {
			if k.log.IsLevelEnabled(logrus.DebugLevel) {
				k.log.Debugf("trap from user mode:\n%s", p.Trapframe.Dump(&last, k.cfg.Color))
			}
			err = k.HandleTrap(p)
		}
		if err != nil {
			if _, exited := err.(models.ExitStatus); !exited {
				k.log.WithError(err).Errorf("halting, user registers:\n%s", p.Trapframe.Dump(nil, k.cfg.Color))
			}
			return err
		}
	}
}

func (k *Kernel) Close() error {
	if k.current != nil && k.current.Exe != nil {
		k.current.Exe.Image().Close()
	}
	return k.hart.Close()
}
