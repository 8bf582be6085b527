// Package main provides the entry point for the szplan CLI, which resolves
// compression configurations and checks them against the accelerators of
// this host.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
