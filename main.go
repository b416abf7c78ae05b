package main

import (
	"fmt"
	"os"

	"codeguard/cmd"
)

func main() {
	if err := cmd.Execute(os.Args[1:]); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, "error:", msg)
		}
		os.Exit(cmd.ExitCode(err))
	}
}
