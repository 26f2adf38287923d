package scraper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/MimeLyc/clip-scraper/internal/errs"
	"github.com/MimeLyc/clip-scraper/internal/twitch"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

const (
	DefaultSourceDelay = 500 * time.Millisecond

	// minPerSource is the per-source floor when a total limit is split across sources.
	minPerSource = 8
)

// Group is what one source contributed. Err is set when the source was skipped.
type Group struct {
	Source Source
	// Name is the canonical name once resolved, the requested name otherwise.
	Name  string
	Clips []twitch.Clip
	Err   error
}

type Request struct {
	Sources  []Source
	DaysBack int
	// TotalLimit truncates the merged result. Zero keeps every clip.
	TotalLimit int
	// PerSource overrides the quota derived from TotalLimit.
	PerSource int
	Filtered  bool
}

// Quota is the number of clips asked of each source.
func (r Request) Quota() int {
	if r.PerSource > 0 {
		return r.PerSource
	}
	if len(r.Sources) == 0 {
		return minPerSource
	}
	return max(minPerSource, r.TotalLimit/len(r.Sources))
}

type Result struct {
	// Clips are sorted by view count, highest first. Equal counts keep source order.
	Clips []twitch.Clip
	// Breakdown counts the returned clips per source name.
	Breakdown map[string]int
	Groups    []Group
	Window    Window
}

// ProgressFunc is called after each source with the number of sources attempted.
type ProgressFunc func(done, total int)

// Pipeline fans a request out over its sources one at a time and merges the results.
type Pipeline struct {
	fetcher     *Fetcher
	sourceDelay time.Duration
	now         func() time.Time
}

type PipelineOption func(*Pipeline)

// WithSourceDelay sets the pause between two sources of one run. Zero disables it.
func WithSourceDelay(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.sourceDelay = d
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

func NewPipeline(fetcher *Fetcher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		fetcher:     fetcher,
		sourceDelay: DefaultSourceDelay,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches every source in order, then sorts and truncates the merged clips.
// It fails with NoContentFound when no source contributed a clip.
func (p *Pipeline) Run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if len(req.Sources) == 0 {
		return nil, errs.New(errs.ErrValidation, "no sources to fetch")
	}

	window := NewWindow(p.now(), req.DaysBack)
	quota := req.Quota()
	limiter := rate.NewLimiter(rate.Every(p.sourceDelay), 1)
	log.Info("Fetching %d sources, %d clips each, window %s..%s, filtered=%t",
		len(req.Sources), quota, twitch.FormatTimestamp(window.Start), twitch.FormatTimestamp(window.End), req.Filtered)

	result := &Result{
		Breakdown: make(map[string]int),
		Groups:    make([]Group, 0, len(req.Sources)),
		Window:    window,
	}
	var merged []twitch.Clip
	succeeded := 0
	for i, src := range req.Sources {
		if err := limiter.Wait(ctx); err != nil {
			return nil, errs.Wrap(err, errs.ErrUnknown, "fetch interrupted")
		}
		group := p.fetcher.Fetch(ctx, src, window, quota, req.Filtered)
		result.Groups = append(result.Groups, group)
		if len(group.Clips) > 0 {
			succeeded++
			merged = append(merged, group.Clips...)
		}
		if progress != nil {
			progress(i+1, len(req.Sources))
		}
	}
	log.Info("Gathered %d clips from %d/%d sources", len(merged), succeeded, len(req.Sources))

	if len(merged) == 0 {
		return nil, errs.New(errs.ErrNoContentFound, noContentMessage(req))
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ViewCount > merged[j].ViewCount
	})
	if req.TotalLimit > 0 && len(merged) > req.TotalLimit {
		merged = merged[:req.TotalLimit]
	}
	for _, c := range merged {
		result.Breakdown[c.Source]++
	}
	result.Clips = merged
	return result, nil
}

func noContentMessage(req Request) string {
	msg := fmt.Sprintf("No clips found for the last %d day(s)", req.DaysBack)
	if req.Filtered {
		msg += "; try disabling the language filter or widening the time window"
	} else {
		msg += "; try widening the time window or choosing other sources"
	}
	return msg
}
