// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (text, json, csv)",
		Value:   "text",
	}
}

// setupCommand handles setup operations for the database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage: "Initialize the journal database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a config file from the built-in template",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "print",
						Usage: "Print the effective configuration instead of writing a file",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// syncCommand lists the source channel into the journal without transferring anything.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Record every upload of the source channel in the journal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Source channel ID or @handle (default: source.channel_id)",
			},
		},
		Action: r.Sync,
	}
}

// runCommand runs one migration.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"migrate"},
		Usage:   "Sync the channel and transfer pending items to PeerTube",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Source channel ID or @handle (default: source.channel_id)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of pending items to transfer, 0 for all (default: transfer.item_limit)",
				Value:   -1,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent transfers (default: transfer.workers)",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Transfer mode: upload or import (default: destination.mode)",
			},
			&cli.BoolFlag{
				Name:  "retry-failed",
				Usage: "Move failed items back to pending before selecting",
			},
			&cli.BoolFlag{
				Name:  "skip-sync",
				Usage: "Work from the journal without listing the channel",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Follow the run in an interactive terminal UI",
			},
			formatFlag(),
		},
		Action: r.Run,
	}
}

// itemsCommand inspects and re-drives journal items.
func itemsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "items",
		Usage: "Inspect journal items",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List items in discovery order",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only items with this status (pending, acquiring, staged, uploading, done, failed)",
					},
					&cli.StringFlag{
						Name:  "channel",
						Usage: "Only items of this channel ID",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of items, 0 for all",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a .json, .csv or .txt file instead of stdout",
					},
					formatFlag(),
				},
				Action: r.ItemsList,
			},
			{
				Name:      "show",
				Usage:     "Show one item",
				ArgsUsage: "<item-id>",
				Flags:     []cli.Flag{formatFlag()},
				Action:    r.ItemsShow,
			},
			{
				Name:      "retry",
				Usage:     "Move failed items back to pending (all failed items when no ID is given)",
				ArgsUsage: "[item-id...]",
				Action:    r.ItemsRetry,
			},
		},
	}
}

// statusCommand prints item counts by status.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show journal item counts by status",
		Flags:  []cli.Flag{formatFlag()},
		Action: r.Status,
	}
}

// runsCommand prints the run history.
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Show recent migration runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of runs to show",
				Value: 20,
			},
			formatFlag(),
		},
		Action: r.Runs,
	}
}

// serveCommand runs the HTTP trigger layer.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve migration triggers and journal reads over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Transfer mode: upload or import (default: destination.mode)",
			},
		},
		Action: r.Serve,
	}
}
