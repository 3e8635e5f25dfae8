// Command casemill is the entrypoint for the CT preprocessing pipeline CLI.
package main

import "github.com/casemill/casemill/internal/cli"

// version is set at build time via -ldflags.
var version = "0.1.0-dev"

func main() {
	cli.Execute(version)
}
