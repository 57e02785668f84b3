package main

import (
	"os"

	"github.com/groundworklabs/groundwork/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
