package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/MimeLyc/clip-scraper/internal/config"
	"github.com/MimeLyc/clip-scraper/internal/errs"
	"github.com/MimeLyc/clip-scraper/internal/jobs"
	"github.com/MimeLyc/clip-scraper/pkg/log"
)

type healthResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	AuthStatus string `json:"auth_status,omitempty"`
	NextRun    string `json:"next_scheduled_run,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.tokens == nil {
		writeJSON(w, http.StatusInternalServerError, healthResponse{Status: "error", Message: "Environment not configured"})
		return
	}
	if _, err := s.tokens.Token(r.Context(), false); err != nil {
		writeJSON(w, http.StatusInternalServerError, healthResponse{Status: "error", Message: err.Error()})
		return
	}

	ret := healthResponse{Status: "healthy", Message: "API is running", AuthStatus: "invalid"}
	if s.tokens.Validate(r.Context()) {
		ret.AuthStatus = "valid"
	}
	if s.schedule != nil {
		if next, ok := s.schedule.NextRun(time.Now()); ok {
			ret.NextRun = next.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, ret)
}

type presetSummary struct {
	Name            string `json:"name"`
	Channels        int    `json:"channels"`
	DaysBack        int    `json:"days_back"`
	ClipsPerChannel int    `json:"clips_per_channel"`
}

func (s *Server) handleListPresets(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	presets := config.Presets()
	ret := make([]presetSummary, 0, len(presets))
	for _, p := range presets {
		ret = append(ret, presetSummary{
			Name:            p.Name,
			Channels:        len(p.Channels),
			DaysBack:        p.DaysBack,
			ClipsPerChannel: p.ClipsPerChannel,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": ret})
}

// handleGetPreset serves the default preset for unknown names.
func (s *Server) handleGetPreset(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	name := p.ByName("name")
	writeJSON(w, http.StatusOK, map[string]any{
		"preset": name,
		"config": config.PresetOrDefault(name),
	})
}

func (s *Server) handleTopClips(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cfg := jobs.DefaultTopClipsConfig()
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	s.submit(w, jobs.KindTopClips, cfg)
}

type highlightsRequest struct {
	Channels        []string `json:"channels"`
	DaysBack        *int     `json:"days_back"`
	ClipsPerChannel *int     `json:"clips_per_channel"`
	Preset          string   `json:"preset"`
}

// config starts from the named preset, or the defaults, and applies the fields the caller set.
func (req highlightsRequest) config() (jobs.HighlightsConfig, error) {
	cfg := jobs.DefaultHighlightsConfig()
	if req.Preset != "" {
		p, ok := config.LookupPreset(req.Preset)
		if !ok {
			return cfg, errs.Newf(errs.ErrValidation, "unknown preset %q", req.Preset)
		}
		cfg = p.Highlights()
	}
	if len(req.Channels) > 0 {
		cfg.Channels = req.Channels
	}
	if req.DaysBack != nil {
		cfg.DaysBack = *req.DaysBack
	}
	if req.ClipsPerChannel != nil {
		cfg.ClipsPerChannel = *req.ClipsPerChannel
	}
	return cfg.Normalize(), nil
}

func (s *Server) handleChannelHighlights(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req highlightsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	cfg, err := req.config()
	if err != nil {
		writeErr(w, err)
		return
	}
	s.submit(w, jobs.KindChannelHighlights, cfg)
}

func (s *Server) submit(w http.ResponseWriter, kind jobs.Kind, cfg any) {
	job, err := s.engine.Submit(kind, cfg)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": "started",
	})
}

type jobsResponse struct {
	Jobs []*jobs.Job `json:"jobs"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, jobsResponse{Jobs: s.engine.List()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	id, err := jobID(p)
	if err != nil {
		writeErr(w, err)
		return
	}
	job, err := s.engine.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	id, err := jobID(p)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.engine.Delete(id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Job deleted"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id, err := jobID(p)
	if err != nil {
		writeErr(w, err)
		return
	}
	job, err := s.engine.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if job.Status != jobs.StatusCompleted || job.OutputFile == "" {
		writeError(w, http.StatusBadRequest, "Job not completed or no output file")
		return
	}
	if s.artifacts != nil && !s.artifacts.Contains(job.OutputFile) {
		log.Warn("Refusing to serve %s for job %d", job.OutputFile, id)
		writeError(w, http.StatusNotFound, "Output file not found")
		return
	}
	if _, err := os.Stat(job.OutputFile); err != nil {
		writeError(w, http.StatusNotFound, "Output file not found")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(job.OutputFile)))
	http.ServeFile(w, r, job.OutputFile)
}

func jobID(p httprouter.Params) (int64, error) {
	raw := p.ByName("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		// ids are positive, so a malformed id names no job
		return 0, errs.Newf(errs.ErrJobNotFound, "job %q not found", raw)
	}
	return id, nil
}

// decodeBody fills dst from a JSON body. An empty body keeps dst as is.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeErr maps the error taxonomy onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	var se *errs.ScrapeError
	msg := err.Error()
	if errors.As(err, &se) {
		msg = se.Message
	}
	switch {
	case errs.IsType(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, msg)
	case errs.IsType(err, errs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "Job not found")
	default:
		log.Error("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}
