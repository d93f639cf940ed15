package main

import (
	"os"

	"github.com/TheusHen/peerlink/cmd/peerlink/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
