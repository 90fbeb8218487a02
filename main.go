package main

import (
	"os"

	"github.com/agentvault/agentvault-go/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
