package main

import (
	"os"

	"github.com/bianoble/componentmgr/cmd/componentmgr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
