package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jdvr/go-again"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/MimeLyc/clip-scraper/internal/config"
	"github.com/MimeLyc/clip-scraper/internal/errs"
	"github.com/MimeLyc/clip-scraper/internal/export"
	"github.com/MimeLyc/clip-scraper/internal/filter"
	"github.com/MimeLyc/clip-scraper/internal/jobs"
	"github.com/MimeLyc/clip-scraper/internal/scraper"
	"github.com/MimeLyc/clip-scraper/internal/service"
	"github.com/MimeLyc/clip-scraper/internal/twitch"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

const (
	warmUpTimeout = 30 * time.Second
	drainTimeout  = 15 * time.Second
	revokeTimeout = 5 * time.Second
)

// components is the wired application shared by every command.
type components struct {
	cfg       *config.Config
	tokens    *twitch.TokenManager
	engine    *jobs.Engine
	writer    *export.Writer
	cron      *cron.Cron
	scheduler *service.CronScheduler
	closeLog  func()
}

func setup(c *cli.Context) (*components, error) {
	cfg, err := config.NewFromEnv(
		config.WithExportDir(c.String("export-dir")),
		config.WithHTTPAddr(c.String("addr")),
	)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	closeLog, err := setupLogging(cfg, c.String("log-level"))
	if err != nil {
		return nil, err
	}

	comp, err := newComponents(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}
	comp.closeLog = closeLog
	return comp, nil
}

// setupLogging installs the global logger. override wins over LOG_LEVEL.
func setupLogging(cfg *config.Config, override string) (func(), error) {
	levelName := cfg.Log.Level
	if override != "" {
		levelName = override
	}
	level := log.ParseLevel(levelName)

	if cfg.Log.File == "" {
		log.InitLogger(level)
		return func() {}, nil
	}
	fl, err := log.NewFileLogger(cfg.Log.File, level)
	if err != nil {
		return nil, fmt.Errorf("open LOG_FILE: %w", err)
	}
	log.SetLogger(fl.Logger)
	return func() { _ = fl.Close() }, nil
}

func newComponents(cfg *config.Config) (*components, error) {
	rules, err := filter.RulesFor(cfg.Scrape.TargetLanguage)
	if err != nil {
		return nil, err
	}

	httpClient := twitch.NewHTTPClient(cfg.Twitch.RequestTimeout)
	tokens, err := twitch.NewTokenManager(cfg.Twitch.ClientID, cfg.Twitch.ClientSecret,
		twitch.WithAuthURL(cfg.Twitch.AuthURL),
		twitch.WithTokenHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, errs.Advice(err))
	}
	client := twitch.NewClient(tokens,
		twitch.WithBaseURL(cfg.Twitch.APIURL),
		twitch.WithHTTPClient(httpClient),
	)

	fetcher := scraper.NewFetcher(client, filter.New(rules), scraper.WithChunkDelay(cfg.Scrape.ChunkDelay))
	pipeline := scraper.NewPipeline(fetcher, scraper.WithSourceDelay(cfg.Scrape.SourceDelay))
	writer := export.NewWriter(cfg.Export.Dir)
	engine := jobs.NewEngine(jobs.WithArtifactRemover(writer.Remove))
	service.NewScrapeService(tokens, pipeline, writer, cfg.Scrape.Games).Register(engine)

	cronEngine := cron.New()
	return &components{
		cfg:       cfg,
		tokens:    tokens,
		engine:    engine,
		writer:    writer,
		cron:      cronEngine,
		scheduler: service.NewCronScheduler(engine, cronEngine, cfg.Scrape.CronExpr),
		closeLog:  func() {},
	}, nil
}

// warmUp acquires the first token with retries so the health endpoint reports
// a real state right after startup. Failure is logged, not fatal. A rejection
// of the credentials stops the retries.
func (c *components) warmUp(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, warmUpTimeout)
	defer cancel()

	var rejected error
	tok, err := again.Retry(ctx, func(ctx context.Context) (twitch.Token, error) {
		tok, err := c.tokens.Token(ctx, false)
		if rejectedCredentials(err) {
			rejected = err
			cancel()
		}
		return tok, err
	})
	if rejected != nil {
		log.Warn("Twitch rejected the credentials at startup: %v (%s)", rejected, errs.Advice(rejected))
		return
	}
	if err != nil {
		log.Warn("Could not acquire a Twitch token at startup: %v", err)
		return
	}
	log.Info("Twitch token acquired, valid until %s", tok.ExpiresAt.Format(time.RFC3339))
}

// rejectedCredentials reports a 4xx token response other than 429; retrying will not help.
func rejectedCredentials(err error) bool {
	if !errs.IsType(err, errs.ErrAuthRequestFailed) {
		return false
	}
	status := errs.StatusOf(err)
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

// shutdown waits for running jobs, then revokes the token.
func (c *components) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	if err := c.engine.Drain(ctx); err != nil {
		log.Warn("Stopped waiting for running jobs: %v", err)
	}
	cancel()

	ctx, cancel = context.WithTimeout(context.Background(), revokeTimeout)
	c.tokens.Revoke(ctx)
	cancel()

	c.closeLog()
}

// runJob submits one job and blocks until it is terminal.
func (c *components) runJob(ctx context.Context, kind jobs.Kind, cfg any) (*jobs.Job, error) {
	job, err := c.engine.Submit(kind, cfg)
	if err != nil {
		return nil, err
	}
	done, err := c.engine.Wait(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if done.Status != jobs.StatusCompleted {
		return done, fmt.Errorf("job %d %s: %s", done.ID, done.Status, done.Error)
	}
	return done, nil
}
