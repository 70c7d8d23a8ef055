// Command cellrules runs reactive rules and alarms over MQTT device cells.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cellrules/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
