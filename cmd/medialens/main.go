// Package main is the entrypoint for the medialens analysis worker and its
// operator commands.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
