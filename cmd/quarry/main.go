package main

import (
	"os"

	"github.com/quarrylabs/quarry/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
