// fabricd is the knowledge fabric core's standalone daemon entry point.
// See cli.RootCmd for the command tree and lifecycle it drives.
package main

import (
	"fmt"
	"os"

	"knowledgefabric/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
