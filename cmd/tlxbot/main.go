package main

import (
	"os"

	"github.com/renbou/tlxdispatch/cmd/tlxbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
