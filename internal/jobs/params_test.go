package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopClipsConfig_DecodeKeepsDefaults(t *testing.T) {
	cfg := DefaultTopClipsConfig()
	require.NoError(t, json.Unmarshal([]byte(`{"limit": 10}`), &cfg))

	assert.Equal(t, TopClipsConfig{DaysBack: 1, Limit: 10, EnglishOnly: true}, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestTopClipsConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*TopClipsConfig)
		wantErr string
	}{
		{"days too low", func(c *TopClipsConfig) { c.DaysBack = 0 }, "days_back"},
		{"days too high", func(c *TopClipsConfig) { c.DaysBack = 31 }, "days_back"},
		{"limit too low", func(c *TopClipsConfig) { c.Limit = 0 }, "limit"},
		{"limit too high", func(c *TopClipsConfig) { c.Limit = 501 }, "limit"},
		{"edges", func(c *TopClipsConfig) { c.DaysBack = 30; c.Limit = 500 }, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultTopClipsConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestHighlightsConfig_NormalizeAndValidate(t *testing.T) {
	cfg := DefaultHighlightsConfig()
	require.NoError(t, json.Unmarshal([]byte(`{"channels": [" alice ", "", "Bob", "ALICE"]}`), &cfg))

	cfg = cfg.Normalize()
	assert.Equal(t, []string{"alice", "Bob"}, cfg.Channels)
	assert.Equal(t, 7, cfg.DaysBack)
	assert.Equal(t, 10, cfg.ClipsPerChannel)
	assert.NoError(t, cfg.Validate())

	empty := DefaultHighlightsConfig().Normalize()
	assert.ErrorContains(t, empty.Validate(), "channels")

	cfg.ClipsPerChannel = 101
	assert.ErrorContains(t, cfg.Validate(), "clips_per_channel")
}
