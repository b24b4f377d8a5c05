// Package main provides the entry point for the signer application.
package main

import (
	"os"

	"github.com/ethpandaops/tee-validator-signer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
