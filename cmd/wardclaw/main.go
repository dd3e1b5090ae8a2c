// Command wardclaw is the entrypoint for the policy-gated agent runtime.
package main

import (
	"fmt"
	"os"

	"github.com/wardlabs/wardclaw/internal/cli"
)

// version is overridden at build time via -ldflags.
var version = "0.1.0-dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
