package main

import (
	"os"

	"github.com/pfinance-dev/pfinance/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
