package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/clip-scraper/internal/export"
	"github.com/MimeLyc/clip-scraper/internal/jobs"
	"github.com/MimeLyc/clip-scraper/internal/twitch"
)

type fakeTokens struct {
	err   error
	valid bool
}

func (f *fakeTokens) Token(context.Context, bool) (twitch.Token, error) {
	if f.err != nil {
		return twitch.Token{}, f.err
	}
	return twitch.Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeTokens) Validate(context.Context) bool {
	return f.valid
}

type fixedSchedule struct {
	next time.Time
}

func (f fixedSchedule) NextRun(time.Time) (time.Time, bool) {
	return f.next, true
}

// clipExecutor exports two clips, so completed jobs own a real artifact.
func clipExecutor(writer *export.Writer) jobs.Executor {
	return func(_ context.Context, job *jobs.Job, report func(int)) (*jobs.Result, error) {
		clips := []twitch.Clip{
			{ID: "a", Title: "best play", ViewCount: 20, BroadcasterName: "Alice"},
			{ID: "b", Title: "clutch", ViewCount: 10, BroadcasterName: "Bob"},
		}
		path, err := writer.Write(string(job.Kind), clips)
		if err != nil {
			return nil, err
		}
		return &jobs.Result{TotalClips: len(clips), TopClip: &clips[0], Clips: clips, OutputFile: path}, nil
	}
}

func newTestServer(t *testing.T, exec jobs.Executor, opts ...Option) (*Server, *jobs.Engine) {
	t.Helper()
	engine := jobs.NewEngine(jobs.WithArtifactRemover(os.Remove))
	engine.Register(jobs.KindTopClips, exec)
	engine.Register(jobs.KindChannelHighlights, exec)
	return NewServer(engine, opts...), engine
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var ret T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret), rec.Body.String())
	return ret
}

func waitJob(t *testing.T, engine *jobs.Engine, id int64) *jobs.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	job, err := engine.Wait(ctx, id)
	require.NoError(t, err)
	return job
}

type startedResponse struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
}

func TestServer_Health(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		srv, _ := newTestServer(t, clipExecutor(export.NewWriter(t.TempDir())))
		rec := do(t, srv, http.MethodGet, "/api/health", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "error", decode[healthResponse](t, rec).Status)
	})

	t.Run("token failure", func(t *testing.T) {
		srv, _ := newTestServer(t, clipExecutor(export.NewWriter(t.TempDir())),
			WithTokens(&fakeTokens{err: errors.New("boom")}))
		rec := do(t, srv, http.MethodGet, "/api/health", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "boom", decode[healthResponse](t, rec).Message)
	})

	t.Run("healthy", func(t *testing.T) {
		next := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		srv, _ := newTestServer(t, clipExecutor(export.NewWriter(t.TempDir())),
			WithTokens(&fakeTokens{valid: true}), WithSchedule(fixedSchedule{next: next}))
		rec := do(t, srv, http.MethodGet, "/api/health", "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[healthResponse](t, rec)
		assert.Equal(t, "healthy", got.Status)
		assert.Equal(t, "valid", got.AuthStatus)
		assert.Equal(t, "2024-03-01T12:00:00Z", got.NextRun)
	})
}

func TestServer_Presets(t *testing.T) {
	srv, _ := newTestServer(t, clipExecutor(export.NewWriter(t.TempDir())))

	rec := do(t, srv, http.MethodGet, "/api/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Presets []presetSummary `json:"presets"`
	}](t, rec)
	require.Len(t, list.Presets, 4)
	assert.Equal(t, presetSummary{Name: "esports", Channels: 8, DaysBack: 1, ClipsPerChannel: 15}, list.Presets[0])

	rec = do(t, srv, http.MethodGet, "/api/presets/unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[struct {
		Preset string `json:"preset"`
		Config struct {
			Name     string   `json:"name"`
			Channels []string `json:"channels"`
		} `json:"config"`
	}](t, rec)
	assert.Equal(t, "unknown", one.Preset)
	assert.Equal(t, "default", one.Config.Name)
	assert.Len(t, one.Config.Channels, 5)
}

func TestServer_SubmitTopClips(t *testing.T) {
	srv, engine := newTestServer(t, clipExecutor(export.NewWriter(t.TempDir())))

	rec := do(t, srv, http.MethodPost, "/api/scrape/top-clips", `{"days_back":3,"game_filter":"Chess"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	started := decode[startedResponse](t, rec)
	assert.Equal(t, int64(1), started.JobID)
	assert.Equal(t, "started", started.Status)

	job := waitJob(t, engine, started.JobID)
	assert.Equal(t, jobs.TopClipsConfig{DaysBack: 3, Limit: 150, EnglishOnly: true, GameFilter: "Chess"}, job.Config)
	assert.Equal(t, jobs.StatusCompleted, job.Status)

	rec = do(t, srv, http.MethodPost, "/api/scrape/top-clips", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestServer_SubmitTopClipsRejectsInvalidInput(t *testing.T) {
	srv, engine := newTestServer(t, clipExecutor(export.NewWriter(t.TempDir())))

	cases := map[string]string{
		`{"limit":0}`:       "limit must be between 1 and 500",
		`{"days_back":31}`:  "days_back must be between 1 and 30",
		`{"days_back":"x"}`: "invalid json body",
		`not json`:          "invalid json body",
	}
	for body, msg := range cases {
		rec := do(t, srv, http.MethodPost, "/api/scrape/top-clips", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, msg, decode[map[string]string](t, rec)["error"])
	}
	assert.Empty(t, engine.List())
}

func TestServer_SubmitChannelHighlights(t *testing.T) {
	srv, engine := newTestServer(t, clipExecutor(export.NewWriter(t.TempDir())))

	rec := do(t, srv, http.MethodPost, "/api/scrape/channel-highlights", `{"channels":[" alice","Alice","bob",""]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job := waitJob(t, engine, decode[startedResponse](t, rec).JobID)
	assert.Equal(t, jobs.HighlightsConfig{Channels: []string{"alice", "bob"}, DaysBack: 7, ClipsPerChannel: 10}, job.Config)

	rec = do(t, srv, http.MethodPost, "/api/scrape/channel-highlights", `{"preset":"esports","clips_per_channel":5}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job = waitJob(t, engine, decode[startedResponse](t, rec).JobID)
	cfg := job.Config.(jobs.HighlightsConfig)
	assert.Len(t, cfg.Channels, 8)
	assert.Equal(t, 1, cfg.DaysBack)
	assert.Equal(t, 5, cfg.ClipsPerChannel)
	assert.Equal(t, "esports", cfg.Preset)
}

func TestServer_SubmitChannelHighlightsRejectsInvalidInput(t *testing.T) {
	srv, engine := newTestServer(t, clipExecutor(export.NewWriter(t.TempDir())))

	cases := map[string]string{
		`{}`:                                         "channels must be a non-empty list",
		`{"channels":["  "]}`:                        "channels must be a non-empty list",
		`{"preset":"nope"}`:                          `unknown preset "nope"`,
		`{"channels":["a"],"clips_per_channel":101}`: "clips_per_channel must be between 1 and 100",
		`{"channels":"a"}`:                           "invalid json body",
	}
	for body, msg := range cases {
		rec := do(t, srv, http.MethodPost, "/api/scrape/channel-highlights", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, msg, decode[map[string]string](t, rec)["error"])
	}
	assert.Empty(t, engine.List())
}

func TestServer_JobLifecycle(t *testing.T) {
	writer := export.NewWriter(t.TempDir())
	srv, engine := newTestServer(t, clipExecutor(writer), WithArtifacts(writer))

	rec := do(t, srv, http.MethodPost, "/api/scrape/top-clips", `{}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[startedResponse](t, rec).JobID
	done := waitJob(t, engine, id)
	require.Equal(t, jobs.StatusCompleted, done.Status)

	rec = do(t, srv, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Jobs []map[string]any `json:"jobs"`
	}](t, rec)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, "top_clips", list.Jobs[0]["job_type"])
	assert.Equal(t, "completed", list.Jobs[0]["status"])

	rec = do(t, srv, http.MethodGet, "/api/jobs/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.EqualValues(t, 100, got["progress"])

	rec = do(t, srv, http.MethodGet, "/api/jobs/1/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "rank,title,channel"))

	rec = do(t, srv, http.MethodDelete, "/api/jobs/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := os.Stat(done.OutputFile)
	assert.True(t, os.IsNotExist(err))

	for _, target := range []string{"/api/jobs/1", "/api/jobs/1/download", "/api/jobs/abc"} {
		rec = do(t, srv, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
	rec = do(t, srv, http.MethodDelete, "/api/jobs/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DownloadRequiresCompletedJob(t *testing.T) {
	release := make(chan struct{})
	blocking := func(ctx context.Context, job *jobs.Job, report func(int)) (*jobs.Result, error) {
		<-release
		return nil, errors.New("gave up")
	}
	srv, engine := newTestServer(t, blocking)

	rec := do(t, srv, http.MethodPost, "/api/scrape/top-clips", `{}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/jobs/1/download", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	close(release)
	failed := waitJob(t, engine, 1)
	require.Equal(t, jobs.StatusFailed, failed.Status)
	rec = do(t, srv, http.MethodGet, "/api/jobs/1/download", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DownloadRefusesForeignFiles(t *testing.T) {
	foreign := filepath.Join(t.TempDir(), "elsewhere.csv")
	require.NoError(t, os.WriteFile(foreign, []byte("secret"), 0o644))
	exec := func(context.Context, *jobs.Job, func(int)) (*jobs.Result, error) {
		clip := twitch.Clip{ID: "a", ViewCount: 1}
		return &jobs.Result{TotalClips: 1, TopClip: &clip, Clips: []twitch.Clip{clip}, OutputFile: foreign}, nil
	}
	store := export.NewWriter(t.TempDir())
	srv, engine := newTestServer(t, exec, WithArtifacts(store))

	rec := do(t, srv, http.MethodPost, "/api/scrape/top-clips", `{}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitJob(t, engine, 1)

	rec = do(t, srv, http.MethodGet, "/api/jobs/1/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestServer_RoutingAndCORS(t *testing.T) {
	srv, _ := newTestServer(t, clipExecutor(export.NewWriter(t.TempDir())), WithAllowedOrigin("https://app.example"))

	rec := do(t, srv, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, srv, http.MethodPut, "/api/jobs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, srv, http.MethodOptions, "/api/scrape/top-clips", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_JobStream(t *testing.T) {
	srv, engine := newTestServer(t, clipExecutor(export.NewWriter(t.TempDir())), WithStreamInterval(10*time.Millisecond))
	job, err := engine.Submit(jobs.KindTopClips, jobs.DefaultTopClipsConfig())
	require.NoError(t, err)
	waitJob(t, engine, job.ID)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream/jobs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	for i := 0; i < 2; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(line, "data: "), line)

		var payload jobsResponse
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		require.Len(t, payload.Jobs, 1)
		assert.Equal(t, jobs.StatusCompleted, payload.Jobs[0].Status)

		_, err = reader.ReadString('\n')
		require.NoError(t, err)
	}
}
