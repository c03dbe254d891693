package main

import (
	"github.com/pkecore/pkecore/go/cmd"

	_ "github.com/pkecore/pkecore/go/cmd/inspect"
	_ "github.com/pkecore/pkecore/go/cmd/run"
)

func main() { cmd.Main() }
