package jobs

import (
	"strings"

	"github.com/MimeLyc/clip-scraper/internal/errs"
)

// TopClipsConfig is the configuration of a category scrape.
type TopClipsConfig struct {
	DaysBack    int    `json:"days_back"`
	Limit       int    `json:"limit"`
	EnglishOnly bool   `json:"english_only"`
	GameFilter  string `json:"game_filter,omitempty"`
}

// DefaultTopClipsConfig is the starting point for decoding; absent fields keep these values.
func DefaultTopClipsConfig() TopClipsConfig {
	return TopClipsConfig{
		DaysBack:    1,
		Limit:       150,
		EnglishOnly: true,
	}
}

func (c TopClipsConfig) Validate() error {
	if c.DaysBack < 1 || c.DaysBack > 30 {
		return errs.New(errs.ErrValidation, "days_back must be between 1 and 30").WithContext("days_back", c.DaysBack)
	}
	if c.Limit < 1 || c.Limit > 500 {
		return errs.New(errs.ErrValidation, "limit must be between 1 and 500").WithContext("limit", c.Limit)
	}
	return nil
}

// HighlightsConfig is the configuration of a channel scrape.
type HighlightsConfig struct {
	Channels        []string `json:"channels"`
	DaysBack        int      `json:"days_back"`
	ClipsPerChannel int      `json:"clips_per_channel"`
	// Preset names a channel list used when Channels is empty.
	Preset string `json:"preset,omitempty"`
}

func DefaultHighlightsConfig() HighlightsConfig {
	return HighlightsConfig{
		DaysBack:        7,
		ClipsPerChannel: 10,
	}
}

// Normalize trims channel names and drops blanks and duplicates, keeping order.
func (c HighlightsConfig) Normalize() HighlightsConfig {
	seen := make(map[string]bool, len(c.Channels))
	channels := make([]string, 0, len(c.Channels))
	for _, ch := range c.Channels {
		ch = strings.TrimSpace(ch)
		key := strings.ToLower(ch)
		if ch == "" || seen[key] {
			continue
		}
		seen[key] = true
		channels = append(channels, ch)
	}
	c.Channels = channels
	c.Preset = strings.TrimSpace(c.Preset)
	return c
}

func (c HighlightsConfig) Validate() error {
	if len(c.Channels) == 0 {
		return errs.New(errs.ErrValidation, "channels must be a non-empty list")
	}
	if c.DaysBack < 1 || c.DaysBack > 30 {
		return errs.New(errs.ErrValidation, "days_back must be between 1 and 30").WithContext("days_back", c.DaysBack)
	}
	if c.ClipsPerChannel < 1 || c.ClipsPerChannel > 100 {
		return errs.New(errs.ErrValidation, "clips_per_channel must be between 1 and 100").WithContext("clips_per_channel", c.ClipsPerChannel)
	}
	return nil
}
