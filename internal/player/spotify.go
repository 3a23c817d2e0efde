package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// SpotifyOptions configures the Web API player.
type SpotifyOptions struct {
	APIURL       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	AccessToken  string // used as-is when set
}

// Spotify drives playback through the Spotify Web API.
type Spotify struct {
	opts   SpotifyOptions
	http   *http.Client
	logger *logrus.Logger
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

var spotifyMethods = map[string]string{
	"play":     http.MethodPut,
	"pause":    http.MethodPut,
	"next":     http.MethodPost,
	"previous": http.MethodPost,
}

func NewSpotify(opts SpotifyOptions, hc *http.Client, logger *logrus.Logger) *Spotify {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Spotify{opts: opts, http: hc, logger: logger, now: time.Now}
}

func (s *Spotify) Do(ctx context.Context, action string) (string, error) {
	if action == "stop" {
		action = "pause"
	}
	method, ok := spotifyMethods[action]
	if !ok {
		return "", fmt.Errorf("unknown spotify action %q", action)
	}
	token, err := s.accessToken(ctx)
	if err != nil {
		return "", err
	}
	target, err := url.JoinPath(s.opts.APIURL, action)
	if err != nil {
		return "", fmt.Errorf("spotify url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("spotify %s: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	s.logger.Debugf("%s %s -> %d", method, target, resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return fmt.Sprintf("Command '%s' sent", action), nil
	case http.StatusUnauthorized:
		s.mu.Lock()
		s.token = ""
		s.mu.Unlock()
	}
	return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns the static token or a cached client-credentials token.
func (s *Spotify) accessToken(ctx context.Context) (string, error) {
	if s.opts.AccessToken != "" {
		return s.opts.AccessToken, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}
	if s.opts.ClientID == "" || s.opts.ClientSecret == "" {
		return "", fmt.Errorf("spotify credentials missing: set SPOTIFY_ACCESS_TOKEN or SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET")
	}
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.opts.ClientID},
		"client_secret": {s.opts.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("spotify token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		return "", fmt.Errorf("spotify token: %w", &StatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("spotify token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("spotify token: empty access_token")
	}
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	if ttl > 2*time.Minute {
		ttl -= time.Minute // refresh early
	}
	s.token = tr.AccessToken
	s.expires = s.now().Add(ttl)
	return s.token, nil
}
