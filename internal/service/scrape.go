package service

import (
	"context"
	"fmt"

	"github.com/MimeLyc/clip-scraper/internal/errs"
	"github.com/MimeLyc/clip-scraper/internal/jobs"
	"github.com/MimeLyc/clip-scraper/internal/scraper"
	"github.com/MimeLyc/clip-scraper/internal/twitch"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

type TokenSource interface {
	Token(ctx context.Context, forceRefresh bool) (twitch.Token, error)
}

type Exporter interface {
	Write(prefix string, clips []twitch.Clip) (string, error)
}

// ScrapeService holds the executors for both job kinds.
type ScrapeService struct {
	tokens   TokenSource
	pipeline *scraper.Pipeline
	exporter Exporter
	games    []string
}

// NewScrapeService builds the executors. exporter may be nil to skip artifacts.
func NewScrapeService(tokens TokenSource, pipeline *scraper.Pipeline, exporter Exporter, games []string) *ScrapeService {
	return &ScrapeService{
		tokens:   tokens,
		pipeline: pipeline,
		exporter: exporter,
		games:    games,
	}
}

func (s *ScrapeService) Register(engine *jobs.Engine) {
	engine.Register(jobs.KindTopClips, s.TopClips)
	engine.Register(jobs.KindChannelHighlights, s.ChannelHighlights)
}

func (s *ScrapeService) TopClips(ctx context.Context, job *jobs.Job, report func(int)) (*jobs.Result, error) {
	cfg, ok := job.Config.(jobs.TopClipsConfig)
	if !ok {
		return nil, errs.Newf(errs.ErrValidation, "job %d: unexpected config %T", job.ID, job.Config)
	}

	if _, err := s.tokens.Token(ctx, false); err != nil {
		return nil, err
	}
	report(jobs.ProgressAuthenticated)

	req := scraper.Request{
		Sources:    scraper.Games(s.games),
		DaysBack:   cfg.DaysBack,
		TotalLimit: cfg.Limit,
		Filtered:   cfg.EnglishOnly,
	}
	if cfg.GameFilter != "" {
		log.Info("Job %d: single game %q", job.ID, cfg.GameFilter)
		req.Sources = []scraper.Source{scraper.Game(cfg.GameFilter)}
		req.PerSource = cfg.Limit
	}
	report(jobs.ProgressConfigured)

	res, err := s.pipeline.Run(ctx, req, fetchProgress(report))
	if err != nil {
		return nil, err
	}
	report(jobs.ProgressFetched)

	output, err := s.export("top_clips", res.Clips)
	if err != nil {
		return nil, err
	}
	report(jobs.ProgressExported)

	return &jobs.Result{
		TotalClips:    len(res.Clips),
		TopClip:       &res.Clips[0],
		GameBreakdown: gameBreakdown(res.Clips),
		Clips:         res.Clips,
		OutputFile:    output,
	}, nil
}

func (s *ScrapeService) ChannelHighlights(ctx context.Context, job *jobs.Job, report func(int)) (*jobs.Result, error) {
	cfg, ok := job.Config.(jobs.HighlightsConfig)
	if !ok {
		return nil, errs.Newf(errs.ErrValidation, "job %d: unexpected config %T", job.ID, job.Config)
	}

	if _, err := s.tokens.Token(ctx, false); err != nil {
		return nil, err
	}
	report(jobs.ProgressAuthenticated)

	req := scraper.Request{
		Sources:   scraper.Channels(cfg.Channels),
		DaysBack:  cfg.DaysBack,
		PerSource: cfg.ClipsPerChannel,
	}
	report(jobs.ProgressConfigured)

	res, err := s.pipeline.Run(ctx, req, fetchProgress(report))
	if err != nil {
		return nil, err
	}
	report(jobs.ProgressFetched)

	output, err := s.export("channel_highlights", res.Clips)
	if err != nil {
		return nil, err
	}
	report(jobs.ProgressExported)

	channels := make(map[string]int, len(res.Groups))
	for _, g := range res.Groups {
		channels[g.Source.Name] = len(g.Clips)
	}
	return &jobs.Result{
		TotalClips: len(res.Clips),
		TopClip:    &res.Clips[0],
		Channels:   channels,
		Clips:      res.Clips,
		OutputFile: output,
	}, nil
}

func (s *ScrapeService) export(prefix string, clips []twitch.Clip) (string, error) {
	if s.exporter == nil {
		return "", nil
	}
	path, err := s.exporter.Write(prefix, clips)
	if err != nil {
		return "", errs.Wrap(err, errs.ErrUnknown, fmt.Sprintf("export %s", prefix))
	}
	return path, nil
}

// fetchProgress spreads the fetch phase over the range between two checkpoints.
func fetchProgress(report func(int)) scraper.ProgressFunc {
	span := jobs.ProgressFetched - jobs.ProgressConfigured
	return func(done, total int) {
		if total <= 0 {
			return
		}
		report(jobs.ProgressConfigured + span*done/total - 1)
	}
}

func gameBreakdown(clips []twitch.Clip) map[string]int {
	counts := make(map[string]int)
	for _, c := range clips {
		name := c.GameName
		if name == "" {
			name = "Unknown"
		}
		counts[name]++
	}
	return counts
}
