// Command archiver is a capacity-bounded recycle bin for files and
// directories.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/archiver/internal/cli"
	"github.com/roach88/archiver/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns its exit code. Arguments from the
// per-user args file come first, so the command line can override them.
func run(args []string, stdout, stderr io.Writer) int {
	fileArgs, err := config.LoadArgsFile(config.DefaultArgsFile())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return cli.ExitCommandError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	cmd.SetArgs(append(fileArgs, args...))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
