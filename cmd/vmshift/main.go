package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/franksops/vmshift/cmd/vmshift/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		if !errors.Is(err, commands.ErrNothingSucceeded) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
