package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/tftpcore/tftpd/internal/batch"
	"github.com/tftpcore/tftpd/internal/logging"
)

// runCmd is the batch client's only real subcommand: read a config.json
// listing download/upload jobs and execute them, per spec.md §6's
// "client <config.json> — batch client; config lists download and
// upload jobs per server."
type runCmd struct {
	verbose bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run the jobs in a config.json file" }
func (*runCmd) Usage() string {
	return "run <config.json>\n\nRuns every download/upload job listed in config.json concurrently.\n"
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.verbose, "v", false, "log job progress")
}

func (c *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	path := f.Arg(0)
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
		return subcommands.ExitFailure
	}
	defer file.Close()

	cfg, err := batch.Decode(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return subcommands.ExitFailure
	}

	log := logging.Discard()
	if c.verbose {
		log = logging.Glog()
	}

	results, err := batch.Run(ctx, cfg, log)
	for _, r := range results {
		fmt.Printf("%s %s: %s\n", r.Job.Kind, r.Job.Filename, r.Outcome)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "one or more jobs failed: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
