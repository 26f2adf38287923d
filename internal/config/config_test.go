package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET", "TWITCH_AUTH_URL", "TWITCH_API_URL",
		"TWITCH_REQUEST_TIMEOUT", "SCRAPE_GAMES", "SCRAPE_SOURCE_DELAY_MS", "SCRAPE_CHUNK_DELAY_MS",
		"SCRAPE_TARGET_LANGUAGE", "SCRAPE_CRON", "EXPORT_DIR", "HTTP_ADDR", "HTTP_ALLOWED_ORIGIN", "LOG_LEVEL", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
	prev := DotEnvFiles
	DotEnvFiles = nil
	t.Cleanup(func() { DotEnvFiles = prev })
}

func TestNewFromEnv_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://id.twitch.tv/oauth2", cfg.Twitch.AuthURL)
	assert.Equal(t, "https://api.twitch.tv/helix", cfg.Twitch.APIURL)
	assert.Equal(t, 10*time.Second, cfg.Twitch.RequestTimeout)
	assert.Equal(t, DefaultGames(), cfg.Scrape.Games)
	assert.Equal(t, 500*time.Millisecond, cfg.Scrape.SourceDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Scrape.ChunkDelay)
	assert.Equal(t, language.English, cfg.Scrape.TargetLanguage)
	assert.Empty(t, cfg.Scrape.CronExpr)
	assert.Equal(t, "clips_output", cfg.Export.Dir)
	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, "*", cfg.HTTP.AllowedOrigin)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Twitch.ClientID)
	assert.Empty(t, cfg.Twitch.ClientSecret)
}

func TestNewFromEnv_FromEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("TWITCH_CLIENT_ID", " id ")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	t.Setenv("SCRAPE_GAMES", "Minecraft, ,Chess")
	t.Setenv("SCRAPE_SOURCE_DELAY_MS", "0")
	t.Setenv("SCRAPE_TARGET_LANGUAGE", "en-US")
	t.Setenv("SCRAPE_CRON", "0 */6 * * *")
	t.Setenv("TWITCH_REQUEST_TIMEOUT", "nope")

	cfg, err := NewFromEnv(WithHTTPAddr("127.0.0.1:9000"))
	require.NoError(t, err)

	assert.Equal(t, "id", cfg.Twitch.ClientID)
	assert.Equal(t, "secret", cfg.Twitch.ClientSecret)
	assert.Equal(t, []string{"Minecraft", "Chess"}, cfg.Scrape.Games)
	assert.Equal(t, time.Duration(0), cfg.Scrape.SourceDelay)
	assert.Equal(t, 10*time.Second, cfg.Twitch.RequestTimeout)
	assert.Equal(t, "0 */6 * * *", cfg.Scrape.CronExpr)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
}

func TestNewFromEnv_LoadsDotEnv(t *testing.T) {
	isolateEnv(t)
	os.Unsetenv("EXPORT_DIR")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EXPORT_DIR=/tmp/from-dotenv\n"), 0o644))
	DotEnvFiles = []string{path}
	t.Cleanup(func() { os.Unsetenv("EXPORT_DIR") })

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv", cfg.Export.Dir)
}

func TestNewFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		name, key, value string
	}{
		{"bad cron", "SCRAPE_CRON", "every day"},
		{"unsupported language", "SCRAPE_TARGET_LANGUAGE", "ja"},
		{"unparsable language", "SCRAPE_TARGET_LANGUAGE", "not a tag!"},
		{"zero timeout", "TWITCH_REQUEST_TIMEOUT", "0"},
		{"negative delay", "SCRAPE_CHUNK_DELAY_MS", "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := NewFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestPresets(t *testing.T) {
	names := make([]string, 0)
	for _, p := range Presets() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"esports", "gaming", "variety", "weekly_report"}, names)

	gaming, ok := LookupPreset("gaming")
	require.True(t, ok)
	assert.Len(t, gaming.Channels, 20)
	assert.Equal(t, 30, gaming.ClipsPerChannel)

	gaming.Channels[0] = "changed"
	again, _ := LookupPreset("gaming")
	assert.Equal(t, "willneff", again.Channels[0])

	hl := gaming.Highlights()
	assert.Equal(t, "gaming", hl.Preset)
	assert.Equal(t, 1, hl.DaysBack)
	assert.Equal(t, 30, hl.ClipsPerChannel)
	assert.Len(t, hl.Channels, 20)
	assert.NoError(t, hl.Validate())

	_, ok = LookupPreset("nope")
	assert.False(t, ok)
	assert.Equal(t, "default", PresetOrDefault("nope").Name)
	assert.Len(t, PresetOrDefault("nope").Channels, 5)
}

func TestDefaultGamesHasNoDuplicates(t *testing.T) {
	seen := make(map[string]bool)
	for _, g := range DefaultGames() {
		assert.False(t, seen[g], g)
		seen[g] = true
	}
}
