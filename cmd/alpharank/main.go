package main

import (
	"os"

	"github.com/dkwon/alpharank/cmd/alpharank/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
