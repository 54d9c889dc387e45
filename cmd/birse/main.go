// Package main is the entry point for the birse CLI.
package main

import (
	"github.com/biggo-labs/birse-go/cmd/birse/cmd"
)

func main() {
	cmd.Execute()
}
