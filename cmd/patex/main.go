// Command patex compiles, tests and runs pattern-expression rules over
// event streams.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/patex/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
