package main

import (
	"fmt"
	"os"

	"github.com/fsaudit/fist/cmd"
)

func main() {
	// Keep a crash from dumping a goroutine trace into a record pipe.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fist: panic: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
