package main

import (
	"os"

	"github.com/SamoraDC/Phantom-Flow/cmd/phantom/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
