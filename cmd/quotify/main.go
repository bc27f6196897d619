// Command quotify keeps an on-chain quote in sync and edits it.
package main

import (
	"fmt"
	"os"

	"github.com/blockberries/quotify/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
