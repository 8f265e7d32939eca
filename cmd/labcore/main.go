// Command labcore manages lab entities, collections and their links.
package main

import (
	"context"
	"fmt"
	"labcore/internal/cli"
	"os"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := cli.NewRootCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "labcore:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitSuccess
}
