// Command client is the batch TFTP client of spec.md §6: it reads a
// config.json listing download/upload jobs against one or more servers
// and executes them, built on google/subcommands to give the batch
// surface a distinct multi-command shape from simple_client.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&runCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
