package main

import (
	"os"

	"github.com/flit-data/flitpipe/internal/build"
	"github.com/flit-data/flitpipe/internal/cmd"
)

var version = "dev"

func init() {
	build.Version = version
}

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
