// The main package for the govcontracts executable.
package main

import (
	"github.com/JakeFAU/govcontracts-loader/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
