// Command meshflow runs pipeline definitions and serves datasets to
// remote ranks.
//
//	meshflow run [-config file] [-ranks n] [-mode m] <pipeline|file.yaml>
//	meshflow serve [-config file] [-port p] <dataset=pipeline>...
//	meshflow list
//	meshflow version
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kbukum/meshflow/version"
)

const usage = `usage: meshflow <command> [flags]

commands:
  run      execute a pipeline across in-process ranks and print its result
  serve    publish pipelines as datasets for remote sources
  list     list the registered components
  version  print the build version
`

func main() {
	if err := dispatch(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "meshflow:", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("missing command")
	}
	switch args[0] {
	case "run":
		return runCommand(ctx, args[1:], stdout, stderr)
	case "serve":
		return serveCommand(ctx, args[1:], stdout, stderr)
	case "list":
		for _, name := range newRegistry().List() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	case "version":
		fmt.Fprintln(stdout, version.GetFullVersion())
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}
