package doctor

import (
	"context"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"voicecmd/internal/config"
	"voicecmd/internal/relay"
)

const dialTimeout = 2 * time.Second

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks.
func Run(ctx context.Context, cfg *config.Config) []Result {
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		{Name: "engine", Pass: true, Detail: cfg.Recognition.Engine},
	}
	if cfg.Recognition.Engine == "whisper" {
		results = append(results,
			checkFile("model file", cfg.ASR.ModelPath),
			checkPortAudioPkgConfig(),
			checkPortAudio(),
		)
	}
	results = append(results, checkBackend(ctx, cfg))
	if cfg.Server.Enabled {
		results = append(results, checkPlayer(cfg))
	}
	return results
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

// checkBackend only dials the backend's host; it does not post a command.
func checkBackend(ctx context.Context, cfg *config.Config) Result {
	label := "backend"
	client, err := relay.NewFromConfig(cfg, nil)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	u, err := url.Parse(client.Endpoint())
	if err != nil || u.Host == "" {
		return Result{Name: label, Pass: false, Detail: "invalid backend.url"}
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	_ = conn.Close()
	return Result{Name: label, Pass: true, Detail: client.Endpoint()}
}

func checkPlayer(cfg *config.Config) Result {
	label := "player"
	switch cfg.Player.Kind {
	case "hook":
		return checkHookExecutable(cfg.Player.Hook.Command)
	case "spotify":
		sp := cfg.Player.Spotify
		if sp.AccessToken == "" && (sp.ClientID == "" || sp.ClientSecret == "") {
			return Result{Name: label, Pass: false, Detail: "set SPOTIFY_ACCESS_TOKEN or SPOTIFY_CLIENT_ID/SPOTIFY_CLIENT_SECRET"}
		}
		return Result{Name: label, Pass: true, Detail: "spotify " + sp.APIURL}
	default:
		if strings.TrimSpace(cfg.Player.ProxyURL) == "" {
			return Result{Name: label, Pass: false, Detail: "player.proxy_url not set"}
		}
		return Result{Name: label, Pass: true, Detail: "proxy " + cfg.Player.ProxyURL}
	}
}

func checkHookExecutable(cmd string) Result {
	label := "player.hook"
	if cmd == "" {
		return Result{Name: label, Pass: false, Detail: "player.hook.command not set"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set player.hook.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	// Else search PATH.
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "portaudio-dev", Pass: false, Detail: "portaudio-2.0 not found (brew install portaudio / apt install portaudio19-dev)"}
	}
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "portaudio-dev", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio-dev", Pass: true, Detail: "found via pkg-config"}
}
