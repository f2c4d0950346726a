// Command fabricd runs the knowledge fabric as a foreground service and
// exposes maintenance operations (sync, memory inspection, status) as
// subcommands against the same configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/agentfabric/knowledgefabric/cmd/fabricd/internal"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			if internal.IsVerbose() {
				fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
			} else {
				fmt.Fprintln(os.Stderr, "Run with --verbose for stack trace")
			}
			os.Exit(internal.ExitError)
		}
	}()

	ctx := context.Background()

	if err := Execute(ctx); err != nil {
		exitCode := internal.HandleError(rootCmd, err)
		os.Exit(exitCode)
	}

	os.Exit(internal.ExitSuccess)
}
