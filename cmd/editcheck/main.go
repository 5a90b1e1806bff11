package main

import (
	"os"

	"github.com/solatis/editcheck/cmd/editcheck/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
