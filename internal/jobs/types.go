package jobs

import (
	"time"

	"github.com/MimeLyc/clip-scraper/internal/twitch"
)

type Kind string

const (
	KindTopClips          Kind = "top_clips"
	KindChannelHighlights Kind = "channel_highlights"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress checkpoints shared by every executor.
const (
	ProgressStarted       = 10
	ProgressAuthenticated = 20
	ProgressConfigured    = 30
	ProgressFetched       = 80
	ProgressExported      = 90
	ProgressDone          = 100
)

// Job is a snapshot of one scrape job. Snapshots returned by the Engine are copies.
type Job struct {
	ID          int64      `json:"id"`
	Kind        Kind       `json:"job_type"`
	Config      any        `json:"config"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Result      *Result    `json:"result"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
	OutputFile  string     `json:"output_file,omitempty"`
}

// Result is the payload of a completed job.
type Result struct {
	TotalClips int          `json:"total_clips"`
	TopClip    *twitch.Clip `json:"top_clip,omitempty"`
	// GameBreakdown counts clips per game for top clips jobs.
	GameBreakdown map[string]int `json:"game_breakdown,omitempty"`
	// Channels counts clips per requested channel, zero for skipped channels.
	Channels map[string]int `json:"channels,omitempty"`
	Clips    []twitch.Clip  `json:"clips"`

	// OutputFile is the exported artifact, moved onto the Job on completion.
	OutputFile string `json:"-"`
}

func (r *Result) empty() bool {
	return r == nil || r.TotalClips == 0 || len(r.Clips) == 0
}
