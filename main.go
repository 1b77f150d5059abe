package main

import (
	"os"

	"github.com/gioe/aiq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
