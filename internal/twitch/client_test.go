package twitch

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/clip-scraper/internal/errs"
	"github.com/MimeLyc/clip-scraper/internal/twitch/twitchtest"
)

var quickRetry = RetryConfig{
	MaxRetries:  3,
	InitialWait: time.Millisecond,
	MaxWait:     4 * time.Millisecond,
	Multiplier:  2,
}

func newTestClient(t *testing.T, srv *twitchtest.Server) *Client {
	t.Helper()
	return NewClient(newTestTokens(t, srv, nil), WithBaseURL(srv.APIURL()), WithRetryConfig(quickRetry))
}

func TestRetryConfigWait(t *testing.T) {
	assert.Equal(t, time.Second, DefaultRetryConfig.wait(0))
	assert.Equal(t, 2*time.Second, DefaultRetryConfig.wait(1))
	assert.Equal(t, 4*time.Second, DefaultRetryConfig.wait(2))
	assert.Equal(t, 4*time.Second, DefaultRetryConfig.wait(5))
}

func TestClientRecoversFromUnauthorizedOnce(t *testing.T) {
	srv := twitchtest.NewServer()
	defer srv.Close()
	srv.AddGames(twitchtest.Game{ID: "27471", Name: "Minecraft"})
	client := newTestClient(t, srv)
	ctx := context.Background()

	_, err := client.GetGamesByName(ctx, []string{"Minecraft"})
	require.NoError(t, err)
	require.Equal(t, 1, srv.TokenRequests())

	srv.ExpireTokens()
	games, err := client.GetGamesByName(ctx, []string{"Minecraft"})
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "27471", games[0].ID)
	assert.Equal(t, 2, srv.TokenRequests())
}

func TestClientRetriesRateLimit(t *testing.T) {
	srv := twitchtest.NewServer()
	defer srv.Close()
	srv.AddUsers(twitchtest.User{ID: "1", Login: "alice", DisplayName: "Alice"})
	client := newTestClient(t, srv)

	srv.RateLimitNext(2)
	users, err := client.GetUsersByLogin(context.Background(), []string{"alice"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].DisplayName)
	assert.Equal(t, 1, srv.Calls("users"))
}

func TestClientGivesUpAfterRetryBudget(t *testing.T) {
	srv := twitchtest.NewServer()
	defer srv.Close()
	client := newTestClient(t, srv)

	srv.RateLimitNext(quickRetry.MaxRetries + 1)
	_, err := client.GetUsersByLogin(context.Background(), []string{"alice"})
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrUpstream))
	assert.Equal(t, http.StatusTooManyRequests, errs.StatusOf(err))
	assert.Equal(t, 0, srv.Calls("users"))
}

func TestClientPropagatesOtherStatuses(t *testing.T) {
	srv := twitchtest.NewServer()
	defer srv.Close()
	srv.AddGames(twitchtest.Game{ID: "27471", Name: "Minecraft"})
	client := newTestClient(t, srv)
	ctx := context.Background()

	srv.FailNext(1, http.StatusBadRequest)
	_, err := client.GetGamesByName(ctx, []string{"Minecraft"})
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrUpstream))
	assert.Equal(t, http.StatusBadRequest, errs.StatusOf(err))
	assert.Contains(t, err.Error(), "detail=Bad Request")

	srv.FailNext(1, http.StatusInternalServerError)
	_, err = client.GetGamesByName(ctx, []string{"Minecraft"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errs.StatusOf(err))
	assert.Equal(t, 0, srv.Calls("games"))

	games, err := client.GetGamesByName(ctx, []string{"Minecraft"})
	require.NoError(t, err)
	assert.Len(t, games, 1)
}

func TestClientStopsOnCancelledContext(t *testing.T) {
	srv := twitchtest.NewServer()
	defer srv.Close()
	client := NewClient(newTestTokens(t, srv, nil), WithBaseURL(srv.APIURL()), WithRetryConfig(RetryConfig{
		MaxRetries: 3, InitialWait: time.Hour, MaxWait: time.Hour, Multiplier: 1,
	}))
	ctx, cancel := context.WithCancel(context.Background())
	_, err := client.tokens.Token(ctx, false)
	require.NoError(t, err)

	srv.RateLimitNext(1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = client.GetUsersByLogin(ctx, []string{"alice"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetClipsPaginates(t *testing.T) {
	srv := twitchtest.NewServer()
	defer srv.Close()
	for i := 0; i < 250; i++ {
		srv.AddClips(twitchtest.Clip{ID: fmt.Sprintf("c%d", i), GameID: "27471", ViewCount: 1000 - i, CreatedAt: "2024-05-01T10:00:00Z"})
	}
	client := newTestClient(t, srv)

	clips, err := client.GetClips(context.Background(), ClipQuery{GameID: "27471", First: 230})
	require.NoError(t, err)
	assert.Len(t, clips, 230)
	assert.Equal(t, "c0", clips[0].ID)
	assert.Equal(t, "c229", clips[229].ID)
	assert.Equal(t, 3, srv.Calls("clips"))

	all, err := client.GetClips(context.Background(), ClipQuery{GameID: "27471", First: 500})
	require.NoError(t, err)
	assert.Len(t, all, 250)
}

func TestGetClipsSendsWindowAndPageSize(t *testing.T) {
	srv := twitchtest.NewServer()
	defer srv.Close()
	srv.AddClips(twitchtest.Clip{ID: "c1", GameID: "27471", ViewCount: 5, CreatedAt: "2024-05-01T10:00:00Z"})
	client := newTestClient(t, srv)

	start := time.Date(2024, 5, 1, 10, 30, 15, 500, time.FixedZone("X", 2*60*60))
	clips, err := client.GetClips(context.Background(), ClipQuery{
		GameID:    "27471",
		StartedAt: start,
		EndedAt:   start.Add(24 * time.Hour),
		First:     5,
	})
	require.NoError(t, err)
	require.Len(t, clips, 1)

	q := srv.LastQuery("clips")
	assert.Equal(t, "27471", q.Get("game_id"))
	assert.Equal(t, "5", q.Get("first"))
	assert.Equal(t, "2024-05-01T08:30:15Z", q.Get("started_at"))
	assert.Equal(t, "2024-05-02T08:30:15Z", q.Get("ended_at"))
	assert.Empty(t, q.Get("broadcaster_id"))
	assert.Empty(t, q.Get("after"))
}

func TestGetClipsNeedsSelector(t *testing.T) {
	client := NewClient(nil)
	_, err := client.GetClips(context.Background(), ClipQuery{First: 10})
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrValidation))
}

func TestLookupBatchLimit(t *testing.T) {
	client := NewClient(nil)
	ids := make([]string, MaxBatchSize+1)
	for i := range ids {
		ids[i] = fmt.Sprint(i)
	}

	_, err := client.GetUsersByID(context.Background(), ids)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrValidation))

	users, err := client.GetUsersByID(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("X", 2*60*60)
	ts := time.Date(2024, 5, 1, 12, 30, 15, 999, loc)
	assert.Equal(t, "2024-05-01T10:30:15Z", FormatTimestamp(ts))
}
