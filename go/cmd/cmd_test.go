package cmd

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/subcommands"
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models"
)

func TestExit(t *testing.T) {
	var buf bytes.Buffer
	if got := Exit(&buf, models.ExitStatus(3)); got != 3 {
		t.Fatalf("Exit(user exit 3) = %d", got)
	}
	if got := Exit(&buf, nil); got != subcommands.ExitSuccess {
		t.Fatalf("Exit(nil) = %d", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("clean exits printed %q", buf.String())
	}
	err := errors.Wrap(models.ErrNoMem, "allocate(4096)")
	if got := Exit(&buf, err); got != subcommands.ExitFailure {
		t.Fatalf("Exit(fatal) = %d", got)
	}
	if !strings.Contains(buf.String(), "Error (resource): allocate(4096): no free region large enough") {
		t.Fatalf("error report:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "TestExit()") {
		t.Fatalf("no stack trace in report:\n%s", buf.String())
	}
}

func TestLoadConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "pkecore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, models.ConfigFile)
	if err := ioutil.WriteFile(path, []byte("color = true\nheap_size = 0x2000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Color || cfg.HeapSize != 0x2000 || cfg.HeapBase != models.DefaultConfig().HeapBase {
		t.Fatalf("config %+v", cfg)
	}
	if err := ioutil.WriteFile(path, []byte("heap_size = 100\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("unaligned heap size accepted")
	}
}

func TestConfigArg(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Verbose = true
	if ConfigArg([]interface{}{cfg}) != cfg {
		t.Fatal("config not passed through")
	}
	if ConfigArg(nil).Verbose {
		t.Fatal("missing config is not the default")
	}
}
