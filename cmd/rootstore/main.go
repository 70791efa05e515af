// Command rootstore operates a rootstore event store: appending and
// inspecting events and building the proof block chain.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/rootstore/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			// Flag and argument errors are not rendered by the commands.
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(cli.ExitCommandError)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
