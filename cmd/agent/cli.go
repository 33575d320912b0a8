// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config string `short:"c" help:"Config file path (default: ./agent.toml)" type:"path"`

	Run         RunCmd         `cmd:"" help:"Run a task in the worker loop"`
	Orchestrate OrchestrateCmd `cmd:"" help:"Execute a YAML orchestration plan"`
	Catalog     CatalogCmd     `cmd:"" help:"Show the tool catalog and what each state allows"`
	Workers     WorkersCmd     `cmd:"" help:"List the registered workers"`
	Replay      ReplayCmd      `cmd:"" help:"Replay session for forensic analysis"`
	Version     VersionCmd     `cmd:"" help:"Show version information"`
}

// RunCmd runs one task through the worker loop.
type RunCmd struct {
	Task          []string `arg:"" help:"Task description"`
	Workspace     string   `short:"w" help:"Workspace directory (overrides config)"`
	MaxIterations int      `short:"n" help:"Iteration bound (overrides config)"`
	NoPlan        bool     `help:"Skip the planning phase"`
	TUI           bool     `name:"tui" help:"Show live progress in a terminal view"`
	JSON          bool     `name:"json" help:"Print the task result as JSON"`
}

// OrchestrateCmd executes an orchestration plan file.
type OrchestrateCmd struct {
	Plan      string `arg:"" help:"Plan file (YAML)" type:"existingfile"`
	Workspace string `short:"w" help:"Workspace directory (overrides config)"`
}

// CatalogCmd renders the tool catalog.
type CatalogCmd struct {
	State string `short:"s" help:"Show the catalog as rendered in this state"`
	Bias  bool   `help:"Show the decoding bias of the state"`
}

// WorkersCmd lists the workers the configuration registers.
type WorkersCmd struct{}

// ReplayCmd replays a session for analysis.
type ReplayCmd struct {
	Session []string `arg:"" help:"Session file(s) or directories to replay"`
	Verbose int      `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	NoPager bool     `help:"Disable pager for output"`
	Follow  bool     `short:"f" help:"Follow a running session"`
	Cost    []string `sep:"none" help:"Model pricing: model:input,output (per 1M tokens). Repeatable." placeholder:"MODEL:IN,OUT"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
