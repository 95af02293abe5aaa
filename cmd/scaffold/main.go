// Command scaffold runs and inspects applications built on the scaffolding
// store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/scaffolding/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
