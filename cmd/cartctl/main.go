package main

import (
	"os"

	"github.com/angelmondragon/dashbite-backend/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
