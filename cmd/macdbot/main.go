package main

import (
	"os"

	"github.com/finbeat/macdbot/cmd/macdbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
