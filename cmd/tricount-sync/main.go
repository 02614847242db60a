// Package main is the entry point for tricount-sync CLI.
package main

import (
	"os"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/cmd/tricount-sync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
