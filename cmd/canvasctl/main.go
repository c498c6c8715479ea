// Command canvasctl is the developer CLI of the canvas service: it seeds
// workspaces, mints local tokens and inspects a running API.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
