package main

import (
	"os"

	"github.com/xiabin827/gospecan/cmd/specan/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
