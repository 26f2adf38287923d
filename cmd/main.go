package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/MimeLyc/clip-scraper/pkg/log"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "clip-scraper",
		Usage: "collect the most viewed Twitch clips by game category or channel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides LOG_LEVEL)",
			},
			&cli.StringFlag{
				Name:  "export-dir",
				Usage: "directory for CSV output (overrides EXPORT_DIR)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			topClipsCommand(),
			highlightsCommand(),
			presetsCommand(),
		},
	}
}
