// Command rpnc compiles Reverse Polish Notation arithmetic into Y86 assembly
// and can assemble and simulate the result.
package main

import (
	"os"
)

func main() {
	a := newApp()
	if err := a.rootCmd().Execute(); err != nil {
		a.printError(os.Stderr, err)
		os.Exit(1)
	}
}
