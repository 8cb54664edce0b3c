package main

import (
	"os"

	"github.com/splinter-dev/splinter/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
