package twitch

import (
	"time"

	"github.com/nicklaw5/helix"
)

const (
	DefaultAuthURL = "https://id.twitch.tv/oauth2"
	DefaultAPIURL  = "https://api.twitch.tv/helix"

	// MaxBatchSize is the upstream ceiling for ids/names per lookup and clips per page.
	MaxBatchSize = 100

	// DefaultRequestTimeout bounds every single upstream HTTP call.
	DefaultRequestTimeout = 10 * time.Second

	timestampLayout = "2006-01-02T15:04:05Z"
)

// Clip is a clip as returned by the clips endpoint, enriched by the scraper
// with game and broadcaster display names.
type Clip struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	URL             string  `json:"url"`
	ViewCount       int     `json:"view_count"`
	CreatorName     string  `json:"creator_name"`
	CreatorID       string  `json:"creator_id"`
	BroadcasterID   string  `json:"broadcaster_id"`
	BroadcasterName string  `json:"broadcaster_name"`
	GameID          string  `json:"game_id"`
	GameName        string  `json:"game_name"`
	Duration        float64 `json:"duration"`
	CreatedAt       string  `json:"created_at"`
	ThumbnailURL    string  `json:"thumbnail_url"`

	// Source is the game or channel the clip was fetched for.
	Source string `json:"source,omitempty"`
}

// Broadcaster is the subset of a user record used for enrichment and filtering.
type Broadcaster struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	BroadcasterType string `json:"broadcaster_type"`
	ProfileImageURL string `json:"profile_image_url"`
}

type Game struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
}

// ClipQuery selects clips of one broadcaster or one game inside [StartedAt, EndedAt].
// First is the total number of clips wanted; pages are requested until it is reached.
type ClipQuery struct {
	BroadcasterID string
	GameID        string
	StartedAt     time.Time
	EndedAt       time.Time
	First         int
}

// FormatTimestamp renders t as the UTC second-precision form the API expects.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func clipFromHelix(c helix.Clip) Clip {
	return Clip{
		ID:              c.ID,
		Title:           c.Title,
		URL:             c.URL,
		ViewCount:       c.ViewCount,
		CreatorName:     c.CreatorName,
		CreatorID:       c.CreatorID,
		BroadcasterID:   c.BroadcasterID,
		BroadcasterName: c.BroadcasterName,
		GameID:          c.GameID,
		Duration:        c.Duration,
		CreatedAt:       c.CreatedAt,
		ThumbnailURL:    c.ThumbnailURL,
	}
}

func broadcasterFromHelix(u helix.User) Broadcaster {
	name := u.DisplayName
	if name == "" {
		name = u.Login
	}
	return Broadcaster{
		ID:              u.ID,
		Login:           u.Login,
		DisplayName:     name,
		Description:     u.Description,
		BroadcasterType: u.BroadcasterType,
		ProfileImageURL: u.ProfileImageURL,
	}
}

func gameFromHelix(g helix.Game) Game {
	return Game{
		ID:        g.ID,
		Name:      g.Name,
		BoxArtURL: g.BoxArtURL,
	}
}
