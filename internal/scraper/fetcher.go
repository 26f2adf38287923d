package scraper

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/MimeLyc/clip-scraper/internal/errs"
	"github.com/MimeLyc/clip-scraper/internal/filter"
	"github.com/MimeLyc/clip-scraper/internal/twitch"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

const DefaultChunkDelay = 100 * time.Millisecond

// Fetcher resolves sources and fetches, enriches and filters their clips.
// The identifier cache is shared by every job using the Fetcher.
type Fetcher struct {
	api    API
	filter *filter.Filter

	// chunks spaces out batched lookups.
	chunks *rate.Limiter

	mu        sync.RWMutex
	idents    map[string]Identity
	gameNames map[string]string
	group     singleflight.Group
}

type FetcherOption func(*Fetcher)

// WithChunkDelay sets the minimum spacing between batched lookup calls. Zero disables it.
func WithChunkDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.chunks = rate.NewLimiter(rate.Every(d), 1)
	}
}

func NewFetcher(api API, f *filter.Filter, opts ...FetcherOption) *Fetcher {
	fetcher := &Fetcher{
		api:       api,
		filter:    f,
		chunks:    rate.NewLimiter(rate.Every(DefaultChunkDelay), 1),
		idents:    make(map[string]Identity),
		gameNames: make(map[string]string),
	}
	for _, opt := range opts {
		opt(fetcher)
	}
	return fetcher
}

// Resolve maps a source name to its upstream identity, consulting the cache first.
// Concurrent resolutions of the same name share one upstream call.
func (f *Fetcher) Resolve(ctx context.Context, src Source) (Identity, error) {
	key := src.key()
	f.mu.RLock()
	ident, ok := f.idents[key]
	f.mu.RUnlock()
	if ok {
		return ident, nil
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		ident, err := f.lookup(ctx, src)
		if err != nil {
			return Identity{}, err
		}
		f.mu.Lock()
		f.idents[key] = ident
		if src.Kind == SourceGame {
			f.gameNames[ident.ID] = ident.Name
		}
		f.mu.Unlock()
		return ident, nil
	})
	if err != nil {
		return Identity{}, err
	}
	return v.(Identity), nil
}

func (f *Fetcher) lookup(ctx context.Context, src Source) (Identity, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		return Identity{}, errs.New(errs.ErrSourceNotFound, "empty source name").WithContext("kind", src.Kind)
	}

	switch src.Kind {
	case SourceGame:
		games, err := f.api.GetGamesByName(ctx, []string{name})
		if err != nil {
			return Identity{}, err
		}
		if len(games) == 0 {
			return Identity{}, errs.Newf(errs.ErrSourceNotFound, "game %q not found", name)
		}
		g := games[0]
		return Identity{Source: src, ID: g.ID, Name: g.Name, BoxArtURL: g.BoxArtURL}, nil

	case SourceChannel:
		users, err := f.api.GetUsersByLogin(ctx, []string{strings.ToLower(name)})
		if err != nil {
			return Identity{}, err
		}
		if len(users) == 0 {
			return Identity{}, errs.Newf(errs.ErrSourceNotFound, "user %q not found", name)
		}
		u := users[0]
		return Identity{Source: src, ID: u.ID, Name: u.DisplayName, Broadcaster: &u}, nil
	}
	return Identity{}, errs.Newf(errs.ErrValidation, "unknown source kind %q", src.Kind)
}

// FetchClips queries one window of clips for ident. With filtering it asks for
// twice the limit, filters, then truncates to limit.
func (f *Fetcher) FetchClips(ctx context.Context, ident Identity, w Window, limit int, filtered bool) ([]twitch.Clip, error) {
	want := limit
	if filtered {
		want = 2 * limit
	}

	q := twitch.ClipQuery{StartedAt: w.Start, EndedAt: w.End, First: want}
	if ident.Source.Kind == SourceGame {
		q.GameID = ident.ID
	} else {
		q.BroadcasterID = ident.ID
	}

	clips, err := f.api.GetClips(ctx, q)
	if err != nil {
		return nil, err
	}
	clips, broadcasters := f.Enrich(ctx, ident, clips)

	if filtered && f.filter != nil {
		kept := clips[:0]
		for _, c := range clips {
			if f.filter.IsLikelyTargetLanguage(c, broadcasters[c.BroadcasterID]) {
				kept = append(kept, c)
			}
		}
		clips = kept
	}
	if len(clips) > limit {
		clips = clips[:limit]
	}
	return clips, nil
}

// Enrich attaches broadcaster display names and game names to clips and
// returns the broadcaster metadata it found, keyed by broadcaster id.
// A failed lookup chunk leaves its clips with the names the clip listing carried.
func (f *Fetcher) Enrich(ctx context.Context, ident Identity, clips []twitch.Clip) ([]twitch.Clip, map[string]*twitch.Broadcaster) {
	broadcasters := make(map[string]*twitch.Broadcaster)
	if ident.Broadcaster != nil {
		broadcasters[ident.ID] = ident.Broadcaster
	}
	if len(clips) == 0 {
		return clips, broadcasters
	}

	var missing []string
	for _, c := range clips {
		if c.BroadcasterID == "" {
			continue
		}
		if _, ok := broadcasters[c.BroadcasterID]; !ok {
			broadcasters[c.BroadcasterID] = nil
			missing = append(missing, c.BroadcasterID)
		}
	}
	f.inChunks(ctx, "users", missing, func(chunk []string) error {
		users, err := f.api.GetUsersByID(ctx, chunk)
		for i := range users {
			broadcasters[users[i].ID] = &users[i]
		}
		return err
	})

	gameNames := f.gameNamesFor(ctx, ident, clips)

	for i := range clips {
		c := &clips[i]
		c.Source = ident.Name
		if b := broadcasters[c.BroadcasterID]; b != nil && b.DisplayName != "" {
			c.BroadcasterName = b.DisplayName
		}
		if ident.Source.Kind == SourceGame {
			c.GameID = ident.ID
			c.GameName = ident.Name
		} else if name, ok := gameNames[c.GameID]; ok {
			c.GameName = name
		}
	}
	return clips, broadcasters
}

// gameNamesFor resolves the game names of channel clips, which span many games.
func (f *Fetcher) gameNamesFor(ctx context.Context, ident Identity, clips []twitch.Clip) map[string]string {
	names := make(map[string]string)
	if ident.Source.Kind == SourceGame {
		return names
	}

	var missing []string
	seen := make(map[string]bool)
	f.mu.RLock()
	for _, c := range clips {
		if c.GameID == "" || seen[c.GameID] {
			continue
		}
		seen[c.GameID] = true
		if name, ok := f.gameNames[c.GameID]; ok {
			names[c.GameID] = name
		} else {
			missing = append(missing, c.GameID)
		}
	}
	f.mu.RUnlock()

	f.inChunks(ctx, "games", missing, func(chunk []string) error {
		games, err := f.api.GetGamesByID(ctx, chunk)
		f.mu.Lock()
		for _, g := range games {
			names[g.ID] = g.Name
			f.gameNames[g.ID] = g.Name
		}
		f.mu.Unlock()
		return err
	})
	return names
}

func (f *Fetcher) inChunks(ctx context.Context, what string, ids []string, fn func([]string) error) {
	for start := 0; start < len(ids); start += twitch.MaxBatchSize {
		end := min(start+twitch.MaxBatchSize, len(ids))
		if err := f.chunks.Wait(ctx); err != nil {
			log.Warn("Stopped %s lookup: %v", what, err)
			return
		}
		if err := fn(ids[start:end]); err != nil {
			log.Warn("Failed to look up %d %s: %v", end-start, what, err)
		}
	}
}

// Fetch resolves src and fetches its clips. Every failure, including a panic,
// is logged and yields an empty contribution.
func (f *Fetcher) Fetch(ctx context.Context, src Source, w Window, limit int, filtered bool) Group {
	group := Group{Source: src, Name: src.Name}
	err := errs.SafeExecute(func() error {
		ident, err := f.Resolve(ctx, src)
		if err != nil {
			return err
		}
		group.Name = ident.Name
		clips, err := f.FetchClips(ctx, ident, w, limit, filtered)
		if err != nil {
			return err
		}
		group.Clips = clips
		return nil
	})
	if err != nil {
		group.Clips = nil
		group.Err = err
		if errs.IsType(err, errs.ErrSourceNotFound) {
			log.Warn("Skipping %s: %v", src, err)
		} else {
			log.Error("Failed to fetch %s: %v", src, err)
		}
		return group
	}
	log.Info("%s: found %d clips", src, len(group.Clips))
	return group
}
