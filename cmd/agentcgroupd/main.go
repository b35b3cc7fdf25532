package main

import (
	"os"

	"github.com/yunwei37/agentcgroup/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
