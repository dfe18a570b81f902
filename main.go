// Command deploy installs and maintains the sites described in a salt
// pillar. See the cli package for the available tasks.
package main

import (
	"os"

	"deploy.evalgo.org/cli"
)

func main() {
	os.Exit(cli.Execute())
}
