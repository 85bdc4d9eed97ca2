// The main package for the leadpipe executable.
package main

import (
	"github.com/JakeFAU/leadpipe/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
