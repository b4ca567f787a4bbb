// Package main is the dropsight command line tool.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig   = "config"
	flagEnvFile  = "env-file"
	flagLogLevel = "log-level"
	flagRender   = "render"
	flagWorkers  = "workers"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "dropsight",
		Usage: "detect disease-indicative poultry droppings in farm images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagEnvFile,
				Usage: "load environment overrides from `FILE` (default .env)",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  flagRender,
				Usage: "write annotated copies of the processed images",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "detect",
				Usage:     "run detection on one image",
				ArgsUsage: "<image-id|path>",
				Action:    detectAction,
			},
			{
				Name:  "batch",
				Usage: "run detection on every image in the source directory",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagWorkers,
						Usage: "concurrent images, 0 for one per CPU",
					},
				},
				Action: batchAction,
			},
			{
				Name:   "latest",
				Usage:  "run detection on the most recent image in the source directory",
				Action: latestAction,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
