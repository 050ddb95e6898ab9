package main

import (
	"os"

	"github.com/tcfw/meshbft/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
