package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/pkecore/pkecore/go/models"
)

var commands []subcommands.Command

// Register adds a subcommand; call it from an init function.
func Register(c subcommands.Command) {
	commands = append(commands, c)
}

func Main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	for _, c := range commands {
		subcommands.Register(c, "")
	}
	configPath := flag.String("config", "", "path to a config.toml (default: search the user and system config folders)")
	color := flag.Bool("color", false, "colourize output")
	verbose := flag.Bool("v", false, "log at debug level, tracing every syscall")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *color {
		cfg.Color = true
	}
	if *verbose {
		cfg.Verbose = true
	}
	os.Exit(int(subcommands.Execute(context.Background(), cfg)))
}

func loadConfig(path string) (*models.Config, error) {
	if path == "" {
		path = models.FindConfig()
	}
	if path == "" {
		return models.DefaultConfig(), nil
	}
	return models.LoadConfig(path)
}
