package main

import (
	"os"

	"github.com/askiada/paladin-plugins/cmd/paladin-plugins/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
