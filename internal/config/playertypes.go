package config

// PlayerConfig selects and configures what the backend does with a matched action.
type PlayerConfig struct {
	Kind     string `toml:"kind"` // proxy, spotify, hook
	ProxyURL string `toml:"proxy_url"`

	Spotify struct {
		APIURL       string `toml:"api_url"`
		TokenURL     string `toml:"token_url"`
		ClientID     string `toml:"client_id"`
		ClientSecret string `toml:"client_secret"`
		AccessToken  string `toml:"access_token"`
	} `toml:"spotify"`

	Hook HookConfig `toml:"hook"`
}

// HookConfig defines an external command run for each matched action.
type HookConfig struct {
	Command     string            `toml:"command"`
	Args        []string          `toml:"args"`
	ArgsLine    string            `toml:"args_line"` // shell-style alternative to args
	CooldownSec float64           `toml:"cooldown_sec"`
	TimeoutSec  float64           `toml:"timeout_sec"`
	Env         map[string]string `toml:"env"`
	RedactPII   bool              `toml:"redact_pii"`
}

// ActionConfig maps spoken keywords to a player action.
type ActionConfig struct {
	Keywords []string `toml:"keywords"` // substrings matched case-insensitively
	Action   string   `toml:"action"`
}

// DefaultActions returns the built-in keyword table, in match order.
func DefaultActions() []ActionConfig {
	return []ActionConfig{
		{Keywords: []string{"play"}, Action: "play"},
		{Keywords: []string{"pause"}, Action: "pause"},
		{Keywords: []string{"next"}, Action: "next"},
		{Keywords: []string{"previous"}, Action: "previous"},
		{Keywords: []string{"stop"}, Action: "pause"},
	}
}

func defaultPlayer() PlayerConfig {
	p := PlayerConfig{
		Kind:     "proxy",
		ProxyURL: "http://localhost:8080",
	}
	p.Spotify.APIURL = "https://api.spotify.com/v1/me/player"
	p.Spotify.TokenURL = "https://accounts.spotify.com/api/token"
	p.Hook.CooldownSec = 0.5
	p.Hook.TimeoutSec = 5
	p.Hook.Env = map[string]string{}
	return p
}
