// Package service writes user-level service definitions (launchd on macOS,
// systemd elsewhere) that run the daemon in the foreground.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

// DefaultLabel names the service in launchctl and systemctl.
const DefaultLabel = "com.voicecmd.agent"

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{.Config}}</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>StandardOutPath</key><string>{{.Log}}</string>
  <key>StandardErrorPath</key><string>{{.Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range $k, $v := .Env }}
    <key>{{$k}}</key><string>{{$v}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=voicecmd voice command daemon ({{.Label}})
After=network-online.target sound.target

[Service]
ExecStart={{.Binary}} serve --config {{.Config}}
Restart=on-failure
{{- range $k, $v := .Env }}
Environment={{$k}}={{$v}}
{{- end }}

[Install]
WantedBy=default.target
`

// Kind is the service manager.
type Kind string

const (
	Launchd Kind = "launchd"
	Systemd Kind = "systemd"
)

// DefaultKind picks the manager for this OS.
func DefaultKind() Kind {
	if runtime.GOOS == "darwin" {
		return Launchd
	}
	return Systemd
}

type Params struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

// Path returns the definition file for label under home.
func Path(kind Kind, home, label string) string {
	if kind == Launchd {
		return filepath.Join(home, "Library", "LaunchAgents", fmt.Sprintf("%s.plist", label))
	}
	return filepath.Join(home, ".config", "systemd", "user", fmt.Sprintf("%s.service", label))
}

// Write renders the definition for params under home.
func Write(kind Kind, home string, params Params) (string, error) {
	src := systemdTemplate
	if kind == Launchd {
		src = launchdTemplate
	}
	tpl, err := template.New(string(kind)).Parse(src)
	if err != nil {
		return "", err
	}
	path := Path(kind, home, params.Label)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	if err := tpl.Execute(f, params); err != nil {
		return "", err
	}
	return path, f.Close()
}

// Status returns the definition path and whether it exists.
func Status(kind Kind, home, label string) (string, bool) {
	path := Path(kind, home, label)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	return path, false
}

// Remove deletes the definition if present.
func Remove(kind Kind, home, label string) (string, error) {
	path := Path(kind, home, label)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return path, err
	}
	return path, nil
}
