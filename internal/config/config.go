package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultLanguage      = "en-US"
	DefaultBackendPath   = "/voice_control"
	defaultNoSpeechSec   = 8.0
	defaultSilenceMS     = 800
	defaultStatusTail    = 10
	defaultStateDirLinux = ".local/state/voicecmd"
	defaultConfigDir     = ".config/voicecmd"
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Recognition struct {
		Engine             string  `toml:"engine"` // whisper, text
		Language           string  `toml:"language"`
		Continuous         bool    `toml:"continuous"`
		InterimResults     bool    `toml:"interim_results"`
		NoSpeechTimeoutSec float64 `toml:"no_speech_timeout_sec"`
		DumpDir            string  `toml:"dump_dir"`
	} `toml:"recognition"`

	Audio struct {
		DeviceName string `toml:"device_name"`
		SampleRate int    `toml:"sample_rate"`
		Channels   int    `toml:"channels"`
		FrameMS    int    `toml:"frame_ms"`
	} `toml:"audio"`

	VAD struct {
		SilenceMS      int `toml:"silence_ms"`
		Aggressiveness int `toml:"aggressiveness"`
		MinSpeechMS    int `toml:"min_speech_ms"`
		MaxSegmentMS   int `toml:"max_segment_ms"`
	} `toml:"vad"`

	ASR struct {
		ModelPath string `toml:"model_path"`
		Threads   int    `toml:"threads"`
	} `toml:"asr"`

	Backend struct {
		URL        string  `toml:"url"`
		Path       string  `toml:"path"`
		TimeoutSec float64 `toml:"timeout_sec"` // 0 disables the timeout
	} `toml:"backend"`

	Server struct {
		Enabled      bool     `toml:"enabled"`
		Addr         string   `toml:"addr"`
		AllowOrigins []string `toml:"allow_origins"`
	} `toml:"server"`

	Player PlayerConfig `toml:"player"`

	Actions []ActionConfig `toml:"actions"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir    string `toml:"state_dir"`
		LogPath     string `toml:"log_path"`
		HistoryPath string `toml:"history_path"`
		SocketPath  string `toml:"socket_path"`
		PidPath     string `toml:"pid_path"`
		ConfigPath  string `toml:"-"`
	} `toml:"paths"`

	UI struct {
		StatusTail int `toml:"status_tail"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`

	History struct {
		Enabled bool `toml:"enabled"`
	} `toml:"history"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/voicecmd for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "voicecmd")
	}

	cfg := &Config{}

	cfg.Recognition.Engine = "whisper"
	cfg.Recognition.Language = DefaultLanguage
	cfg.Recognition.Continuous = false
	cfg.Recognition.InterimResults = false
	cfg.Recognition.NoSpeechTimeoutSec = defaultNoSpeechSec

	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.FrameMS = 20

	cfg.VAD.SilenceMS = defaultSilenceMS
	cfg.VAD.Aggressiveness = 2
	cfg.VAD.MinSpeechMS = 250
	cfg.VAD.MaxSegmentMS = 8000

	cfg.ASR.ModelPath = filepath.Join(stateDir, "models", "ggml-base.en-q5_1.bin")

	cfg.Backend.URL = "http://127.0.0.1:5050"
	cfg.Backend.Path = DefaultBackendPath

	cfg.Server.Enabled = false
	cfg.Server.Addr = "0.0.0.0:5050"
	cfg.Server.AllowOrigins = []string{"*"}

	cfg.Player = defaultPlayer()
	cfg.Actions = DefaultActions()

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "voicecmd.log")
	cfg.Paths.HistoryPath = filepath.Join(stateDir, "commands.log")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "voicecmd.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "voicecmd.pid")

	cfg.UI.StatusTail = defaultStatusTail

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	cfg.History.Enabled = true

	return cfg, nil
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	// Actions from the file replace the defaults rather than extending them.
	cfg.Actions = nil
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Actions) == 0 {
		cfg.Actions = DefaultActions()
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Validate reports settings that cannot work at runtime.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Recognition.Engine) {
	case "whisper", "text":
	default:
		return fmt.Errorf("recognition.engine must be whisper or text (got %q)", c.Recognition.Engine)
	}
	if strings.TrimSpace(c.Recognition.Language) == "" {
		return errors.New("recognition.language must not be empty")
	}
	if c.Backend.TimeoutSec < 0 {
		return fmt.Errorf("backend.timeout_sec must be >= 0 (got %v)", c.Backend.TimeoutSec)
	}
	switch strings.ToLower(c.Player.Kind) {
	case "proxy", "spotify", "hook":
	default:
		return fmt.Errorf("player.kind must be proxy, spotify or hook (got %q)", c.Player.Kind)
	}
	for i, a := range c.Actions {
		if strings.TrimSpace(a.Action) == "" {
			return fmt.Errorf("actions[%d]: action is required", i)
		}
		if len(a.Keywords) == 0 {
			return fmt.Errorf("actions[%d] (%s): at least one keyword is required", i, a.Action)
		}
	}
	return nil
}

// BackendTimeout converts backend.timeout_sec to a duration; zero means none.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSec * float64(time.Second))
}

// NoSpeechTimeout converts recognition.no_speech_timeout_sec to a duration.
func (c *Config) NoSpeechTimeout() time.Duration {
	return time.Duration(c.Recognition.NoSpeechTimeoutSec * float64(time.Second))
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), filepath.Dir(cfg.Paths.HistoryPath)} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ModelDir is the directory downloaded whisper models live in.
func ModelDir(cfg *Config) string {
	return filepath.Join(cfg.Paths.StateDir, "models")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICECMD_ENGINE"); v != "" {
		cfg.Recognition.Engine = strings.ToLower(v)
	}
	if v := os.Getenv("VOICECMD_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("VOICECMD_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
		cfg.Server.Enabled = true
	}
	if v := os.Getenv("VOICECMD_SERVER_ENABLED"); v != "" {
		cfg.Server.Enabled = truthy(v)
	}
	if v := os.Getenv("VOICECMD_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("VOICECMD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VOICECMD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("VOICECMD_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = truthy(v)
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		cfg.Player.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		cfg.Player.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_ACCESS_TOKEN"); v != "" {
		cfg.Player.Spotify.AccessToken = v
	}
}

func truthy(v string) bool {
	return v != "0" && strings.ToLower(v) != "false"
}

// NowUnixMilli returns milliseconds since epoch.
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
