// Command dupecache lists duplicate files among candidate paths read from a file or stdin.
package main

import (
	"fmt"
	"os"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli := newCLI(os.Stdin, os.Stdout, os.Stderr)
	cli.rootCmd.SetArgs(args)

	if err := cli.rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dupecache: %v\n", err)
		return 1
	}
	return cli.exitCode
}
