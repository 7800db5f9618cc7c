package main

import (
	"context"
	"os"

	"go-fraud-visuals-ui/internal/cli"
)

var version = "dev"

func main() {
	cli.Version = version
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
