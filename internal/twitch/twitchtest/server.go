// Package twitchtest provides an in-process stand-in for the Twitch auth
// server and the Helix endpoints used by the scraper.
package twitchtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// maxFirst mirrors the upstream page size ceiling.
const maxFirst = 100

// Clip, Game and User are the wire shapes the fake upstream serves.
type Clip struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	BroadcasterID   string  `json:"broadcaster_id"`
	BroadcasterName string  `json:"broadcaster_name"`
	CreatorID       string  `json:"creator_id"`
	CreatorName     string  `json:"creator_name"`
	GameID          string  `json:"game_id"`
	Title           string  `json:"title"`
	ViewCount       int     `json:"view_count"`
	CreatedAt       string  `json:"created_at"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	Duration        float64 `json:"duration"`
}

type Game struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
}

type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description"`
	BroadcasterType string `json:"broadcaster_type"`
}

type Server struct {
	*httptest.Server

	mu sync.Mutex

	clips []Clip
	games []Game
	users []User

	expiresIn   int
	tokenStatus int
	issued      map[string]bool
	tokenSeq    int
	revoked     []string

	failNext   int
	failStatus int
	calls      map[string]int
	lastQuery  map[string]url.Values
}

func NewServer() *Server {
	s := &Server{
		expiresIn:   3600,
		tokenStatus: http.StatusOK,
		issued:      make(map[string]bool),
		calls:       make(map[string]int),
		lastQuery:   make(map[string]url.Values),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", s.handleToken)
	mux.HandleFunc("/oauth2/validate", s.handleValidate)
	mux.HandleFunc("/oauth2/revoke", s.handleRevoke)
	mux.HandleFunc("/helix/clips", s.authed("clips", s.handleClips))
	mux.HandleFunc("/helix/games", s.authed("games", s.handleGames))
	mux.HandleFunc("/helix/users", s.authed("users", s.handleUsers))
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) AuthURL() string { return s.URL + "/oauth2" }
func (s *Server) APIURL() string  { return s.URL + "/helix" }

func (s *Server) AddClips(clips ...Clip) {
	s.mu.Lock()
	s.clips = append(s.clips, clips...)
	s.mu.Unlock()
}

func (s *Server) AddGames(games ...Game) {
	s.mu.Lock()
	s.games = append(s.games, games...)
	s.mu.Unlock()
}

func (s *Server) AddUsers(users ...User) {
	s.mu.Lock()
	s.users = append(s.users, users...)
	s.mu.Unlock()
}

func (s *Server) SetExpiresIn(seconds int) {
	s.mu.Lock()
	s.expiresIn = seconds
	s.mu.Unlock()
}

// SetTokenStatus makes the token endpoint answer with status.
func (s *Server) SetTokenStatus(status int) {
	s.mu.Lock()
	s.tokenStatus = status
	s.mu.Unlock()
}

// ExpireTokens makes every token issued so far answer 401.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	for tok := range s.issued {
		s.issued[tok] = false
	}
	s.mu.Unlock()
}

// RateLimitNext answers the next n API calls with 429.
func (s *Server) RateLimitNext(n int) {
	s.FailNext(n, http.StatusTooManyRequests)
}

// FailNext answers the next n authorized API calls with status.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	s.failNext = n
	s.failStatus = status
	s.mu.Unlock()
}

func (s *Server) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenSeq
}

func (s *Server) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

// Calls returns how many authorized calls reached endpoint ("clips", "games", "users").
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// LastQuery returns the query of the last call that reached endpoint.
func (s *Server) LastQuery(endpoint string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery[endpoint]
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "invalid grant"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenSeq++
	if s.tokenStatus != http.StatusOK {
		writeJSON(w, s.tokenStatus, map[string]any{"status": s.tokenStatus, "message": "token request rejected"})
		return
	}
	tok := fmt.Sprintf("token-%d", s.tokenSeq)
	s.issued[tok] = true
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": tok,
		"expires_in":   s.expiresIn,
		"token_type":   "bearer",
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "OAuth ")
	s.mu.Lock()
	ok := s.issued[tok]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "invalid access token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client_id": "test", "expires_in": 3600})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	tok := r.PostForm.Get("token")
	s.mu.Lock()
	s.revoked = append(s.revoked, tok)
	delete(s.issued, tok)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) authed(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		valid := s.issued[tok] && r.Header.Get("Client-ID") != ""
		failStatus := 0
		if valid && s.failNext > 0 {
			s.failNext--
			failStatus = s.failStatus
		}
		if valid && failStatus == 0 {
			s.calls[endpoint]++
			s.lastQuery[endpoint] = r.URL.Query()
		}
		s.mu.Unlock()

		switch {
		case !valid:
			writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "message": "invalid oauth token"})
		case failStatus != 0:
			writeJSON(w, failStatus, map[string]any{"status": failStatus, "message": http.StatusText(failStatus)})
		default:
			next(w, r)
		}
	}
}

func (s *Server) handleClips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gameID := q.Get("game_id")
	broadcasterID := q.Get("broadcaster_id")
	first, err := strconv.Atoi(q.Get("first"))
	if err != nil || first < 1 || first > maxFirst {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "invalid first"})
		return
	}
	offset, _ := strconv.Atoi(q.Get("after"))

	s.mu.Lock()
	matched := make([]Clip, 0)
	for _, c := range s.clips {
		if gameID != "" && c.GameID != gameID {
			continue
		}
		if broadcasterID != "" && c.BroadcasterID != broadcasterID {
			continue
		}
		matched = append(matched, c)
	}
	s.mu.Unlock()
	// the clips endpoint returns the most viewed clips first
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ViewCount > matched[j].ViewCount })

	if offset > len(matched) {
		offset = len(matched)
	}
	end := min(offset+first, len(matched))
	page := matched[offset:end]

	pagination := map[string]any{}
	if end < len(matched) {
		pagination["cursor"] = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": page, "pagination": pagination})
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	names := lowerSet(q["name"])
	ids := lowerSet(q["id"])

	s.mu.Lock()
	data := make([]Game, 0)
	for _, g := range s.games {
		if names[strings.ToLower(g.Name)] || ids[strings.ToLower(g.ID)] {
			data = append(data, g)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logins := lowerSet(q["login"])
	ids := lowerSet(q["id"])

	s.mu.Lock()
	data := make([]User, 0)
	for _, u := range s.users {
		if logins[strings.ToLower(u.Login)] || ids[strings.ToLower(u.ID)] {
			data = append(data, u)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
