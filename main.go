// Package main is the entry point for the SLE RCF user.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/sle/cmd"
	_ "firestige.xyz/sle/plugins"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
