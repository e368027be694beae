package main

import (
	"os"

	"github.com/ducminhle1904/tpsl-guard/cmd/tpslctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
