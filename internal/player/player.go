// Package player turns a matched action (play, pause, next, previous) into a
// call on the media player.
package player

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"voicecmd/internal/config"
	"voicecmd/internal/hook"

	"github.com/sirupsen/logrus"
)

// Player performs one action and returns a human-readable reply.
type Player interface {
	Do(ctx context.Context, action string) (string, error)
}

// StatusError is an unexpected HTTP status from the player.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("player returned status %d", e.StatusCode)
}

const defaultHTTPTimeout = 10 * time.Second

// New builds the player named by player.kind.
func New(cfg *config.Config, logger *logrus.Logger) (Player, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	hc := &http.Client{Timeout: defaultHTTPTimeout}
	switch cfg.Player.Kind {
	case "", "proxy":
		return NewProxy(cfg.Player.ProxyURL, hc, logger)
	case "spotify":
		sp := cfg.Player.Spotify
		return NewSpotify(SpotifyOptions{
			APIURL:       sp.APIURL,
			TokenURL:     sp.TokenURL,
			ClientID:     sp.ClientID,
			ClientSecret: sp.ClientSecret,
			AccessToken:  sp.AccessToken,
		}, hc, logger), nil
	case "hook":
		return NewHook(hook.NewRunner(cfg.Player.Hook, logger)), nil
	default:
		return nil, fmt.Errorf("unknown player kind %q", cfg.Player.Kind)
	}
}
