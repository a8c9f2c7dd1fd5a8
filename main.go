// The main package for the autoplay executable.
package main

import (
	"os"

	"github.com/JakeFAU/autoplay-crawler/cmd"
)

// main defers all execution to the Cobra CLI and exits with its status.
func main() {
	os.Exit(cmd.Execute())
}
