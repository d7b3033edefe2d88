// Command tokenctl mints and inspects session tokens and room grants with
// the same settings the server reads from the environment.
package main

import (
	"os"

	"github.com/teknolabs/vocameet-server/internal/config"
)

func main() {
	if err := newRootCmd(config.LoadSigning).Execute(); err != nil {
		os.Exit(1)
	}
}
