package main

import (
	"os"

	"github.com/bianoble/update-gate/cmd/update-gate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
