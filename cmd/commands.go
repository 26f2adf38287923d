package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/clip-scraper/internal/config"
	"github.com/MimeLyc/clip-scraper/internal/httpapi"
	"github.com/MimeLyc/clip-scraper/internal/jobs"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and the scheduled scrape",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides HTTP_ADDR)"},
		},
		Action: func(c *cli.Context) error {
			comp, err := setup(c)
			if err != nil {
				return err
			}
			defer comp.shutdown()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			go comp.warmUp(ctx)
			srv := httpapi.NewServer(comp.engine,
				httpapi.WithTokens(comp.tokens),
				httpapi.WithArtifacts(comp.writer),
				httpapi.WithSchedule(comp.scheduler),
				httpapi.WithAllowedOrigin(comp.cfg.HTTP.AllowedOrigin),
			)
			return runWithComponents(ctx, comp.cfg, comp.scheduler, comp.cron, srv)
		},
	}
}

// runWithComponents schedules the cron job and serves HTTP until ctx ends.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, cronEngine cronRunner, httpSrv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("schedule scrape: %w", err)
	}
	cronEngine.Start()
	defer cronEngine.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("Shutting down HTTP API")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func topClipsCommand() *cli.Command {
	return &cli.Command{
		Name:  "top-clips",
		Usage: "collect the most viewed clips across popular game categories",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days-back", Value: 1, Usage: "time window in days (1-30)"},
			&cli.IntFlag{Name: "limit", Value: 150, Usage: "number of clips to keep (1-500)"},
			&cli.StringFlag{Name: "game", Usage: "scrape a single game category"},
			&cli.BoolFlag{Name: "all-languages", Usage: "disable the language filter"},
		},
		Action: func(c *cli.Context) error {
			cfg := jobs.TopClipsConfig{
				DaysBack:    c.Int("days-back"),
				Limit:       c.Int("limit"),
				EnglishOnly: !c.Bool("all-languages"),
				GameFilter:  c.String("game"),
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			comp, err := setup(c)
			if err != nil {
				return err
			}
			defer comp.shutdown()

			job, err := comp.runJob(c.Context, jobs.KindTopClips, cfg)
			if err != nil {
				return err
			}
			printTopClips(c.App.Writer, job)
			return nil
		},
	}
}

func highlightsCommand() *cli.Command {
	return &cli.Command{
		Name:  "highlights",
		Usage: "collect the most viewed clips of a list of channels",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "channels", Usage: "channel logins, comma separated"},
			&cli.StringFlag{Name: "preset", Usage: "use the channels of a named preset"},
			&cli.IntFlag{Name: "days-back", Value: 7, Usage: "time window in days (1-30)"},
			&cli.IntFlag{Name: "clips-per-channel", Value: 10, Usage: "clips kept per channel (1-100)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := highlightsConfig(c)
			if err != nil {
				return err
			}

			comp, err := setup(c)
			if err != nil {
				return err
			}
			defer comp.shutdown()

			job, err := comp.runJob(c.Context, jobs.KindChannelHighlights, cfg)
			if err != nil {
				return err
			}
			printHighlights(c.App.Writer, job)
			return nil
		},
	}
}

// highlightsConfig starts from the preset, if any, and applies the flags the user set.
func highlightsConfig(c *cli.Context) (jobs.HighlightsConfig, error) {
	cfg := jobs.DefaultHighlightsConfig()
	if name := c.String("preset"); name != "" {
		p, ok := config.LookupPreset(name)
		if !ok {
			return cfg, fmt.Errorf("unknown preset %q, run the presets command to list them", name)
		}
		cfg = p.Highlights()
	}
	if channels := c.StringSlice("channels"); len(channels) > 0 {
		cfg.Channels = channels
	}
	if c.IsSet("days-back") || cfg.Preset == "" {
		cfg.DaysBack = c.Int("days-back")
	}
	if c.IsSet("clips-per-channel") || cfg.Preset == "" {
		cfg.ClipsPerChannel = c.Int("clips-per-channel")
	}
	cfg = cfg.Normalize()
	return cfg, cfg.Validate()
}

func presetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "presets",
		Usage: "list the channel presets",
		Action: func(c *cli.Context) error {
			printPresets(c.App.Writer, config.Presets())
			return nil
		},
	}
}
