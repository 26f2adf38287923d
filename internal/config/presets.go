package config

import (
	"sort"

	"github.com/MimeLyc/clip-scraper/internal/jobs"
)

// Preset is a named channel highlights configuration.
type Preset struct {
	Name            string   `json:"name"`
	Channels        []string `json:"channels"`
	DaysBack        int      `json:"days_back"`
	ClipsPerChannel int      `json:"clips_per_channel"`
}

var gamingChannels = []string{
	"willneff", "fuslie", "disguisedtoast", "quarterjade", "sydeon",
	"carolinekwan", "samwitch", "peterpark", "drxx", "kkatamina",
	"captainsparklez", "sykkuno", "abe", "yoojin", "valkyrae",
	"blau", "xchocobars", "itsryanhiga", "ellum", "kyacolosseum",
}

var varietyChannels = []string{
	"qtcinderella", "extraemily", "hasanabi", "mizkif", "sodapoppin", "cinna",
	"nmplol", "agent00", "39daph", "emiru", "misterarther", "kaicenat",
}

var esportsChannels = []string{
	"shroud", "s1mple", "tarik", "stewie2k", "scream", "tenz", "sinatraa", "aceu",
}

var presets = map[string]Preset{
	"gaming":        {Name: "gaming", Channels: gamingChannels[:20], DaysBack: 1, ClipsPerChannel: 30},
	"variety":       {Name: "variety", Channels: varietyChannels[:12], DaysBack: 1, ClipsPerChannel: 30},
	"esports":       {Name: "esports", Channels: esportsChannels, DaysBack: 1, ClipsPerChannel: 15},
	"weekly_report": {Name: "weekly_report", Channels: gamingChannels[:10], DaysBack: 1, ClipsPerChannel: 25},
}

// DefaultPreset is served for unknown preset names.
var DefaultPreset = Preset{Name: "default", Channels: gamingChannels[:5], DaysBack: 7, ClipsPerChannel: 15}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, false
	}
	return p.clone(), true
}

// PresetOrDefault returns the named preset, or DefaultPreset.
func PresetOrDefault(name string) Preset {
	if p, ok := LookupPreset(name); ok {
		return p
	}
	return DefaultPreset.clone()
}

// Presets returns every named preset, sorted by name.
func Presets() []Preset {
	ret := make([]Preset, 0, len(presets))
	for _, p := range presets {
		ret = append(ret, p.clone())
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// Highlights returns the channel highlights job configuration of the preset.
func (p Preset) Highlights() jobs.HighlightsConfig {
	return jobs.HighlightsConfig{
		Channels:        append([]string(nil), p.Channels...),
		DaysBack:        p.DaysBack,
		ClipsPerChannel: p.ClipsPerChannel,
		Preset:          p.Name,
	}
}

func (p Preset) clone() Preset {
	p.Channels = append([]string(nil), p.Channels...)
	return p
}

// DefaultGames is the list of popular categories scraped by a top clips job.
func DefaultGames() []string {
	return []string{
		"Just Chatting",
		"League of Legends",
		"Grand Theft Auto V",
		"Fortnite",
		"Valorant",
		"World of Warcraft",
		"Minecraft",
		"Counter-Strike",
		"Apex Legends",
		"Deadlock",
		"Music",
		"Art",
		"Slots",
		"IRL",
		"Teamfight Tactics",
		"Peak",
		"Path of Exile 2",
		"Marvel Rivals",
		"Animals, Aquariums, and Zoos",
	}
}
