package main

import (
	"os"

	"github.com/CodeMonkeyCybersecurity/x9/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
