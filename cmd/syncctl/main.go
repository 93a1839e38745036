// Command syncctl runs device syncs and inspects sync state without the HTTP server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openRuntime, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
