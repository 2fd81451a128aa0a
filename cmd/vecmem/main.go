// Command vecmem is an operator tool for vecmem stores: it checks graph
// recall, inspects snapshot files and moves snapshots in and out of an engine.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
