package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/adamancini/buildswap/internal/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cmd.Execute(version, commit, date); err != nil {
		if !errors.Is(err, cmd.ErrUpdateFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
