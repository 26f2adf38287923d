package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/clip-scraper/internal/jobs"
	"github.com/MimeLyc/clip-scraper/pkg/icron"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

type JobRunner interface {
	Submit(kind jobs.Kind, config any) (*jobs.Job, error)
	Wait(ctx context.Context, id int64) (*jobs.Job, error)
}

// CronScheduler submits a default top clips job on a cron schedule.
// A tick that fires while the previous scheduled job still runs joins it.
type CronScheduler struct {
	runner   JobRunner
	cron     *cron.Cron
	cronExpr string
	config   jobs.TopClipsConfig
	group    singleflight.Group
}

func NewCronScheduler(runner JobRunner, c *cron.Cron, cronExpr string) *CronScheduler {
	return &CronScheduler{
		runner:   runner,
		cron:     c,
		cronExpr: cronExpr,
		config:   jobs.DefaultTopClipsConfig(),
	}
}

// Schedule registers the job with cron. An empty expression schedules nothing.
func (s *CronScheduler) Schedule(ctx context.Context) error {
	if s.cronExpr == "" {
		log.Info("No scrape schedule configured")
		return nil
	}
	if _, err := icron.Parse(s.cronExpr); err != nil {
		return err
	}

	_, err := s.cron.AddFunc(s.cronExpr, func() { s.RunOnce(ctx) })
	if err != nil {
		return err
	}
	log.Info("Scheduled top clips scrape with %q", s.cronExpr)
	return nil
}

// RunOnce submits one scheduled job and waits for it to finish.
func (s *CronScheduler) RunOnce(ctx context.Context) {
	_, _, _ = s.group.Do("top_clips", func() (any, error) {
		job, err := s.runner.Submit(jobs.KindTopClips, s.config)
		if err != nil {
			log.Error("Failed to submit scheduled scrape: %v", err)
			return nil, err
		}
		done, err := s.runner.Wait(ctx, job.ID)
		if err != nil {
			log.Warn("Stopped waiting for scheduled job %d: %v", job.ID, err)
			return nil, err
		}
		log.Info("Scheduled job %d finished: %s", done.ID, done.Status)
		return nil, nil
	})
}

// NextRun reports when the next scheduled job is due after ref.
func (s *CronScheduler) NextRun(ref time.Time) (time.Time, bool) {
	if s.cronExpr == "" {
		return time.Time{}, false
	}
	info, err := icron.GetTriggerInfo(s.cronExpr, ref)
	if err != nil {
		return time.Time{}, false
	}
	return info.Next, true
}
