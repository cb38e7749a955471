package main

import (
	"os"

	"github.com/WilliamDuke02/databaseProject/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
