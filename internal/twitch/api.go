package twitch

import (
	"context"
	"time"

	"github.com/nicklaw5/helix"

	"github.com/MimeLyc/clip-scraper/internal/errs"
)

// GetClips pages through the clips endpoint until q.First clips are
// collected or the upstream has no further page.
func (c *Client) GetClips(ctx context.Context, q ClipQuery) ([]Clip, error) {
	if q.BroadcasterID == "" && q.GameID == "" {
		return nil, errs.New(errs.ErrValidation, "clip query needs a broadcaster id or a game id")
	}
	if q.First <= 0 {
		return nil, nil
	}

	clips := make([]Clip, 0, min(q.First, MaxBatchSize))
	cursor := ""
	for len(clips) < q.First {
		params := &helix.ClipsParams{
			BroadcasterID: q.BroadcasterID,
			GameID:        q.GameID,
			First:         min(q.First-len(clips), MaxBatchSize),
			After:         cursor,
			StartedAt:     helixTime(q.StartedAt),
			EndedAt:       helixTime(q.EndedAt),
		}

		var page *helix.ClipsResponse
		err := c.call(ctx, "clips", func(api *helix.Client) (*helix.ResponseCommon, error) {
			resp, err := api.GetClips(params)
			if err != nil {
				return nil, err
			}
			page = resp
			return &resp.ResponseCommon, nil
		})
		if err != nil {
			return nil, err
		}
		for _, clip := range page.Data.Clips {
			clips = append(clips, clipFromHelix(clip))
		}

		cursor = page.Data.Pagination.Cursor
		if len(page.Data.Clips) == 0 || cursor == "" {
			break
		}
	}
	if len(clips) > q.First {
		clips = clips[:q.First]
	}
	return clips, nil
}

func (c *Client) GetGamesByName(ctx context.Context, names []string) ([]Game, error) {
	return c.getGames(ctx, "name", &helix.GamesParams{Names: names})
}

func (c *Client) GetGamesByID(ctx context.Context, ids []string) ([]Game, error) {
	return c.getGames(ctx, "id", &helix.GamesParams{IDs: ids})
}

func (c *Client) GetUsersByLogin(ctx context.Context, logins []string) ([]Broadcaster, error) {
	return c.getUsers(ctx, "login", &helix.UsersParams{Logins: logins})
}

func (c *Client) GetUsersByID(ctx context.Context, ids []string) ([]Broadcaster, error) {
	return c.getUsers(ctx, "id", &helix.UsersParams{IDs: ids})
}

func (c *Client) getGames(ctx context.Context, key string, params *helix.GamesParams) ([]Game, error) {
	n := len(params.IDs) + len(params.Names)
	if n == 0 {
		return nil, nil
	}
	if err := checkBatch(key, n); err != nil {
		return nil, err
	}

	var resp *helix.GamesResponse
	err := c.call(ctx, "games", func(api *helix.Client) (*helix.ResponseCommon, error) {
		r, err := api.GetGames(params)
		if err != nil {
			return nil, err
		}
		resp = r
		return &r.ResponseCommon, nil
	})
	if err != nil {
		return nil, err
	}
	games := make([]Game, 0, len(resp.Data.Games))
	for _, g := range resp.Data.Games {
		games = append(games, gameFromHelix(g))
	}
	return games, nil
}

// getUsers never sends an empty lookup: helix would resolve it to the token's own user.
func (c *Client) getUsers(ctx context.Context, key string, params *helix.UsersParams) ([]Broadcaster, error) {
	n := len(params.IDs) + len(params.Logins)
	if n == 0 {
		return nil, nil
	}
	if err := checkBatch(key, n); err != nil {
		return nil, err
	}

	var resp *helix.UsersResponse
	err := c.call(ctx, "users", func(api *helix.Client) (*helix.ResponseCommon, error) {
		r, err := api.GetUsers(params)
		if err != nil {
			return nil, err
		}
		resp = r
		return &r.ResponseCommon, nil
	})
	if err != nil {
		return nil, err
	}
	users := make([]Broadcaster, 0, len(resp.Data.Users))
	for _, u := range resp.Data.Users {
		users = append(users, broadcasterFromHelix(u))
	}
	return users, nil
}

func checkBatch(key string, n int) error {
	if n > MaxBatchSize {
		return errs.Newf(errs.ErrValidation, "at most %d %s values per lookup, got %d", MaxBatchSize, key, n)
	}
	return nil
}

// helixTime drops sub-second precision; helix sends the value as RFC 3339.
func helixTime(t time.Time) helix.Time {
	if t.IsZero() {
		return helix.Time{}
	}
	return helix.Time{Time: t.UTC().Truncate(time.Second)}
}
