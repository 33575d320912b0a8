// Package main is the entry point for taskforce-replay, a standalone
// viewer for session logs.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/vinayprograms/taskforce/internal/replay"
)

// Build-time variables
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

type cli struct {
	Paths   []string         `arg:"" optional:"" help:"Session files or directories of session files"`
	Verbose int              `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	NoPager bool             `short:"n" help:"Print to stdout instead of the pager"`
	Live    bool             `short:"l" help:"Re-render a running session as it grows"`
	Cost    []string         `sep:"none" help:"Model pricing: model:input,output (per 1M tokens). Repeatable." placeholder:"MODEL:IN,OUT"`
	Version kong.VersionFlag `help:"Show version information"`
}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("taskforce-replay"),
		kong.Description("Replay taskforce session logs for forensic analysis."),
		kong.UsageOnError(),
		kong.Vars{"version": fmt.Sprintf("taskforce-replay %s (commit: %s, built: %s)", version, commit, buildTime)},
	)
	if err := c.run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) run() error {
	if len(c.Paths) == 0 {
		c.Paths = []string{"."}
	}
	opts, err := replay.CostOptions(c.Cost)
	if err != nil {
		return err
	}
	paths, err := replay.ExpandPaths(c.Paths)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no session files found")
	}

	interactive := !c.NoPager && isTerminal(os.Stdout)

	if c.Live {
		if len(paths) != 1 {
			return fmt.Errorf("live mode takes exactly one session file, got %d", len(paths))
		}
		if !interactive {
			return fmt.Errorf("live mode needs a terminal")
		}
		return replay.New(os.Stdout, c.Verbose, opts...).ReplayFileLive(paths[0])
	}

	m := replay.NewMulti(os.Stdout, c.Verbose, opts...)
	if interactive {
		return m.ReplayFilesInteractive(paths)
	}
	return m.ReplayFiles(paths)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
