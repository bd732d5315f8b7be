// Package main provides the entry point for the lorerank CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/lorerank/cmd/lorerank/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
