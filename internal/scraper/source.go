package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/MimeLyc/clip-scraper/internal/twitch"
)

// API is the part of the Helix client the scraper needs.
type API interface {
	GetClips(ctx context.Context, q twitch.ClipQuery) ([]twitch.Clip, error)
	GetGamesByName(ctx context.Context, names []string) ([]twitch.Game, error)
	GetGamesByID(ctx context.Context, ids []string) ([]twitch.Game, error)
	GetUsersByLogin(ctx context.Context, logins []string) ([]twitch.Broadcaster, error)
	GetUsersByID(ctx context.Context, ids []string) ([]twitch.Broadcaster, error)
}

type SourceKind string

const (
	SourceGame    SourceKind = "game"
	SourceChannel SourceKind = "channel"
)

// Source is one fetch unit: a game category or a channel, by human readable name.
type Source struct {
	Kind SourceKind
	Name string
}

func Game(name string) Source    { return Source{Kind: SourceGame, Name: name} }
func Channel(name string) Source { return Source{Kind: SourceChannel, Name: name} }

func Games(names []string) []Source {
	out := make([]Source, 0, len(names))
	for _, n := range names {
		out = append(out, Game(n))
	}
	return out
}

func Channels(names []string) []Source {
	out := make([]Source, 0, len(names))
	for _, n := range names {
		out = append(out, Channel(n))
	}
	return out
}

// key is the identifier cache key. Lookups upstream are case-insensitive.
func (s Source) key() string {
	return string(s.Kind) + ":" + strings.ToLower(strings.TrimSpace(s.Name))
}

func (s Source) String() string {
	return string(s.Kind) + " " + s.Name
}

// Identity is a resolved Source. Entries are immutable once cached.
type Identity struct {
	Source Source
	ID     string
	// Name is the canonical name reported upstream.
	Name string
	// Broadcaster is set for channel sources.
	Broadcaster *twitch.Broadcaster
	// BoxArtURL is set for game sources.
	BoxArtURL string
}

// Window is the UTC time range [Start, End] bounding a clip query.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns [now - daysBack, now] at second precision.
func NewWindow(now time.Time, daysBack int) Window {
	end := now.UTC().Truncate(time.Second)
	return Window{
		Start: end.AddDate(0, 0, -daysBack),
		End:   end,
	}
}
