// Command duelbot plays attribute duels from the terminal: against the scripted opponent, or as
// a lobby participant that accepts the first challenge it receives.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
