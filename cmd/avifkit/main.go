// Command avifkit converts images to AVIF from the command line, optionally
// searching for the best quality that fits a byte budget.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}
