package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/MimeLyc/clip-scraper/internal/config"
	"github.com/MimeLyc/clip-scraper/internal/jobs"
	"github.com/MimeLyc/clip-scraper/internal/twitch"
)

const (
	rule           = "============================================================"
	shownGames     = 10
	previewClips   = 5
	previewTitleLn = 45
)

type count struct {
	name  string
	count int
}

// sortedCounts orders by count, then name.
func sortedCounts(m map[string]int) []count {
	ret := make([]count, 0, len(m))
	for name, n := range m {
		ret = append(ret, count{name: name, count: n})
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].count != ret[j].count {
			return ret[i].count > ret[j].count
		}
		return ret[i].name < ret[j].name
	})
	return ret
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func views(n int) string {
	return humanize.Comma(int64(n))
}

func printTopClips(w io.Writer, job *jobs.Job) {
	res := job.Result
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "CLIP COLLECTION SUMMARY")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total clips: %d\n", res.TotalClips)
	fmt.Fprintf(w, "Output file: %s\n", job.OutputFile)

	if top := res.TopClip; top != nil {
		fmt.Fprintln(w, "\n#1 MOST POPULAR CLIP:")
		fmt.Fprintf(w, "   Title: %s\n", top.Title)
		fmt.Fprintf(w, "   Views: %s\n", views(top.ViewCount))
		fmt.Fprintf(w, "   Creator: %s\n", orUnknown(top.CreatorName))
		fmt.Fprintf(w, "   Game: %s\n", orUnknown(top.GameName))
		fmt.Fprintf(w, "   URL: %s\n", top.URL)
	}

	fmt.Fprintln(w, "\nCLIPS BY GAME CATEGORY:")
	games := sortedCounts(res.GameBreakdown)
	for i, g := range games {
		if i == shownGames {
			rest := 0
			for _, other := range games[shownGames:] {
				rest += other.count
			}
			fmt.Fprintf(w, "   Other games: %d clips\n", rest)
			break
		}
		fmt.Fprintf(w, "   %s: %d clips\n", g.name, g.count)
	}

	printPreview(w, res.Clips)
	fmt.Fprintln(w, rule)
}

func printPreview(w io.Writer, clips []twitch.Clip) {
	fmt.Fprintf(w, "\nTOP %d CLIPS PREVIEW:\n", previewClips)
	for i, c := range clips {
		if i == previewClips {
			break
		}
		title := c.Title
		if r := []rune(title); len(r) > previewTitleLn {
			title = string(r[:previewTitleLn]) + "..."
		}
		fmt.Fprintf(w, "   %d. %s\n", i+1, title)
		fmt.Fprintf(w, "      %s | %s | %s views\n", orUnknown(c.CreatorName), orUnknown(c.GameName), views(c.ViewCount))
	}
}

func printHighlights(w io.Writer, job *jobs.Job) {
	res := job.Result
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "HIGHLIGHTS SUMMARY")
	fmt.Fprintln(w, rule)

	channels := make([]string, 0, len(res.Channels))
	if cfg, ok := job.Config.(jobs.HighlightsConfig); ok {
		channels = append(channels, cfg.Channels...)
	} else {
		for name := range res.Channels {
			channels = append(channels, name)
		}
		sort.Strings(channels)
	}
	for _, name := range channels {
		if n := res.Channels[name]; n > 0 {
			fmt.Fprintf(w, "%s: %d highlights\n", name, n)
		} else {
			fmt.Fprintf(w, "%s: No highlights found\n", name)
		}
	}

	fmt.Fprintf(w, "\nTotal highlights: %d\n", res.TotalClips)
	fmt.Fprintf(w, "Output file: %s\n", job.OutputFile)
	printPreview(w, res.Clips)
	fmt.Fprintln(w, rule)
}

func printPresets(w io.Writer, presets []config.Preset) {
	fmt.Fprintln(w, "Available presets:")
	for _, p := range presets {
		fmt.Fprintf(w, "  %s: %d channels, %d days, %d clips per channel (%s)\n",
			p.Name, len(p.Channels), p.DaysBack, p.ClipsPerChannel, strings.Join(p.Channels, ", "))
	}
}
