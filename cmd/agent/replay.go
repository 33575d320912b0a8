package main

import (
	"fmt"
	"os"

	"github.com/vinayprograms/taskforce/internal/replay"
)

// Run replays one or more session logs.
func (c *ReplayCmd) Run() error {
	opts, err := replay.CostOptions(c.Cost)
	if err != nil {
		return err
	}
	paths, err := replay.ExpandPaths(c.Session)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no session files found")
	}

	interactive := !c.NoPager && isTerminal(os.Stdout)

	if c.Follow {
		if len(paths) != 1 {
			return fmt.Errorf("--follow takes exactly one session file, got %d", len(paths))
		}
		if !interactive {
			return fmt.Errorf("--follow needs a terminal")
		}
		return replay.New(os.Stdout, c.Verbose, opts...).ReplayFileLive(paths[0])
	}

	if len(paths) == 1 {
		r := replay.New(os.Stdout, c.Verbose, opts...)
		if interactive {
			return r.ReplayFileInteractive(paths[0])
		}
		return r.ReplayFile(paths[0])
	}

	m := replay.NewMulti(os.Stdout, c.Verbose, opts...)
	if interactive {
		return m.ReplayFilesInteractive(paths)
	}
	return m.ReplayFiles(paths)
}
