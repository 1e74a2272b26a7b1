package main

import (
	"os"

	"github.com/certwatch-app/cw-certcheck/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
