package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var (
	version  = "dev"
	revision = "none"
)

func main() {
	// Setup logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:  "modcast",
		Usage: "Run turn-taking voice conversations between AI personas",
		Description: `modcast hosts a podcast-style discussion between AI personas.
Each persona speaks through a realtime voice session, then picks who speaks
next. A human participant can be picked too, and answers with recorded audio.`,
		Version: fmt.Sprintf("%s (rev: %s)", version, revision),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"V"},
				Usage:   "Enable verbose logging",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a modcast.json config file (default: .modcast/modcast.json, then ~/.modcast/modcast.json)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run a conversation",
				Action: handleRun,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "topic",
						Aliases: []string{"t"},
						Usage:   "Topic that seeds the first turn",
					},
					&cli.StringFlag{
						Name:  "cast",
						Usage: "Cast file (.json or .yaml) listing the personas",
					},
					&cli.StringFlag{
						Name:    "provider",
						Aliases: []string{"p"},
						Usage:   "Session provider (openai, azure, scripted)",
					},
					&cli.IntFlag{
						Name:  "max-turns",
						Usage: "Stop after this many turns, human turns included (0 = unlimited)",
					},
					&cli.DurationFlag{
						Name:  "human-timeout",
						Usage: "How long the human may take to answer",
					},
					&cli.StringFlag{
						Name:  "human-name",
						Usage: "Name personas use for the human participant",
					},
					&cli.BoolFlag{
						Name:  "no-human",
						Usage: "Do not offer the human as a next speaker",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory to write each turn's audio to as WAV",
					},
					&cli.StringFlag{
						Name:  "events",
						Usage: "File to write conversation events to as JSON lines",
					},
				},
			},
			{
				Name:      "replay",
				Usage:     "Print a conversation from a JSON-lines events file",
				ArgsUsage: "<events.jsonl>",
				Action:    handleReplay,
			},
			{
				Name:    "personas",
				Aliases: []string{"p"},
				Usage:   "Manage the cast of personas",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "cast",
						Usage: "Cast file (.json or .yaml)",
					},
				},
				Commands: []*cli.Command{
					{
						Name:    "list",
						Aliases: []string{"ls", "l"},
						Usage:   "List personas of the cast",
						Action:  handlePersonasList,
					},
					{
						Name:      "show",
						Usage:     "Show details of a persona",
						ArgsUsage: "<persona>",
						Action:    handlePersonasShow,
					},
					{
						Name:      "init",
						Usage:     "Write the default cast file",
						ArgsUsage: "[path]",
						Action:    handlePersonasInit,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:    "force",
								Aliases: []string{"f"},
								Usage:   "Overwrite an existing cast file",
							},
						},
					},
					{
						Name:      "validate",
						Usage:     "Check a cast file",
						ArgsUsage: "[path]",
						Action:    handlePersonasValidate,
					},
				},
			},
			{
				Name:  "config",
				Usage: "Show or generate configuration",
				Commands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Show the effective config file with secrets masked",
						Action: handleConfigShow,
					},
					{
						Name:   "example",
						Usage:  "Print an example config file",
						Action: handleConfigExample,
					},
				},
			},
		},
		Before: func(ctx context.Context, c *cli.Command) error {
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("Failed to run application")
	}
}
