// Command gastosctl is the operator CLI: it mints API tokens, runs
// migrations, and prints or exports a user's expenses.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
