// Package main is the entry point for cadencectl, the operator CLI.
package main

import (
	"os"
	_ "time/tzdata"

	"github.com/drewmudry/cadence-api/cmd/cadencectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
