// The main package for the adintel executable.
package main

import (
	"github.com/JakeFAU/adintel/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
