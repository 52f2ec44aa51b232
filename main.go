// Package main is the entry point for the dgcap DGGEN capture tool.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/dgcap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
