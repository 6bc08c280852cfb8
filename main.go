package main

import (
	"os"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
