// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/subcord/internal/shared"
	"github.com/urfave/cli/v3"
)

// app builds the root command.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "subcord",
		Usage:   "Mirror Subsonic now playing into Discord Rich Presence",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars(shared.EnvConfigPath),
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

// runCommand starts the presence engine
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Mirror playback into Discord until interrupted",
		Action: r.Run,
	}
}

// pingCommand checks the upstream server
func pingCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check the Subsonic server and report its kind and version",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Ping,
	}
}

// nowCommand prints what the listener is playing and the payload that would be published
func nowCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "now",
		Usage: "Show the listener's current track and its presence payload",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
				Value: true,
			},
		},
		Action: r.Now,
	}
}

// configCommand handles configuration files
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration file operations",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write the example configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.ConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration with secrets redacted",
				Action: r.ConfigShow,
			},
		},
	}
}
