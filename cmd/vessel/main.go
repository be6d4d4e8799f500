package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/vesselhq/vessel/pkg/chains"
	"github.com/vesselhq/vessel/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "vessel",
		Usage:                 "Inspect and validate vessel configuration",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("VESSEL_LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "nodes",
				Aliases: []string{"n"},
				Usage:   "List the node types this build provides",
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return listNodes(os.Stdout)
				},
			},
			{
				Name:  "chains",
				Usage: "Work with chain configuration",
				Commands: []*cli.Command{
					{
						Name:      "validate",
						Usage:     "Validate a YAML chain configuration file",
						ArgsUsage: "<path>",
						Action: func(ctx context.Context, command *cli.Command) error {
							log.Setup(command.String("log-level"))

							path := command.Args().First()
							if path == "" {
								return fmt.Errorf("usage: vessel chains validate <path>")
							}

							config, err := chains.Load(path)
							if err != nil {
								return err
							}

							for _, chain := range config.Chains {
								fmt.Printf("%d\t%s\t%s\n", chain.ChainID, chain.Name, chain.RPCURL)
							}

							fmt.Printf("%d chain(s) configured\n", len(config.Chains))

							return nil
						},
					},
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
