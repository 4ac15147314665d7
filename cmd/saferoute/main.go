package main

import (
	"os"

	"github.com/lazypower/saferoute/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
