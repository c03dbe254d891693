package models

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
	"github.com/sirupsen/logrus"
)

const ConfigFile = "config.toml"

type Config struct {
	Color   bool `toml:"color"`
	Verbose bool `toml:"verbose"`

	// RAM size of the modeled board.
	PhysMemSize uint64 `toml:"phys_mem_size"`
	// First user heap address; each new process takes the next HeapSize bytes.
	HeapBase uint64 `toml:"heap_base"`
	HeapSize uint64 `toml:"heap_size"`
	// Top of the single user stack page.
	StackTop uint64 `toml:"stack_top"`

	Output io.Writer      `toml:"-"`
	Log    *logrus.Logger `toml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		PhysMemSize: 16 << 20,
		HeapBase:    0x400000,
		HeapSize:    0x10000,
		StackTop:    0x7ffff000,
		Output:      os.Stdout,
	}
}

// LoadConfig overlays a TOML file on the defaults.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, errors.Wrapf(err, "loading config %s", path)
	}
	return c, c.Validate()
}

// FindConfig returns the first config.toml in the user or system config
// folders, or "" if there is none.
func FindConfig() string {
	dirs := configdir.New("pkecore", "")
	if folder := dirs.QueryFolderContainsFile(ConfigFile); folder != nil {
		return folder.Path + string(os.PathSeparator) + ConfigFile
	}
	return ""
}

func (c *Config) Validate() error {
	if c.HeapSize == 0 || c.HeapSize%4096 != 0 {
		return errors.Errorf("heap_size %#x is not a positive multiple of the page size", c.HeapSize)
	}
	if c.HeapBase%4096 != 0 || c.StackTop%4096 != 0 {
		return errors.New("heap_base and stack_top must be page aligned")
	}
	if c.PhysMemSize < 4096 {
		return errors.New("phys_mem_size must hold at least one page")
	}
	return nil
}

// Logger returns the kernel log, creating a stderr logger on first use.
func (c *Config) Logger() *logrus.Logger {
	if c.Log == nil {
		c.Log = logrus.New()
		c.Log.SetOutput(os.Stderr)
		c.Log.SetFormatter(&logrus.TextFormatter{
			DisableColors:    !c.Color,
			DisableTimestamp: true,
		})
		if c.Verbose {
			c.Log.SetLevel(logrus.DebugLevel)
		}
	}
	return c.Log
}

// Console is where user programs print.
func (c *Config) Console() io.Writer {
	if c.Output == nil {
		return ioutil.Discard
	}
	return c.Output
}

func (c *Config) Printf(f string, args ...interface{}) {
	fmt.Fprintf(c.Console(), f, args...)
}
