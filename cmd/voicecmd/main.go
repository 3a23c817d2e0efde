package main

import (
	"fmt"
	"os"

	"voicecmd/internal/control"
	"voicecmd/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "voicecmd",
		Short: "voicecmd: speak a command, relay it to a voice_control backend",
		Long: `voicecmd listens once per activation, recognizes a single utterance, lowercases it
and posts {"command": "..."} to the backend's /voice_control endpoint. The backend's
message (or the error) is shown as the status line.

Key commands:
  listen                    Interactive terminal front end
  start|stop|restart        Daemon lifecycle (control socket, optional backend)
  backend                   Run the /voice_control HTTP backend on its own
  status [--json]           State, status line, recent commands
  trigger|say|send          Start listening, inject text, post a command
  doctor|setup              Check deps / download default model
  models list|download|set  Manage whisper.cpp models
  service install|uninstall|status   launchd/systemd helper

Env overrides: VOICECMD_ENGINE, VOICECMD_BACKEND_URL, VOICECMD_SERVER_ADDR,
               VOICECMD_METRICS_ADDR, VOICECMD_LOG_LEVEL/FORMAT,
               VOICECMD_HISTORY_ENABLED, SPOTIFY_CLIENT_ID/SECRET`,
		Example: `  voicecmd listen --engine text
  voicecmd backend --addr 127.0.0.1:5000
  voicecmd start --server-addr 127.0.0.1:5000 --metrics-addr 127.0.0.1:9318
  voicecmd say "next track"
  voicecmd send "pause"
  voicecmd service install --env VOICECMD_BACKEND_URL=http://127.0.0.1:5000`,
		DisableFlagsInUseLine: true,
	}

	root.Version = version
	root.SetVersionTemplate("voicecmd v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/voicecmd/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewListenCmd(cfgPath))
	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(daemon.NewBackendCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewTriggerCmd(cfgPath))
	root.AddCommand(control.NewSayCmd(cfgPath))
	root.AddCommand(control.NewSendCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewServiceCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewTranscribeCmd(cfgPath))
	root.AddCommand(control.NewModelsCmd(cfgPath))
	root.AddCommand(control.NewConfigCmd(cfgPath))

	// Hidden internal serve command used by start.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	return root.Execute()
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%svoicecmd%s: spoken commands for a voice_control backend %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sListens once per activation, posts the command, shows the reply.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  voicecmd [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  listen                      speak (or type) commands in this terminal")
		writeln("  start|stop|restart          daemon lifecycle")
		writeln("  backend                     serve POST /voice_control")
		writeln("  status [--json]             state, status line, recent commands")
		writeln("  trigger                     start a listening session in the daemon")
		writeln("  say \"text\"                  inject text into the daemon (text engine)")
		writeln("  send \"text\"                 post a command straight to the backend")
		writeln("  doctor|setup                check deps / download default model")
		writeln("  models list|download|set    manage whisper.cpp models")
		writeln("  service install|uninstall|status  launchd/systemd user service")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --server-addr <addr>    embed the backend in the daemon")
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus text)")
		writeln("  --engine whisper|text   recognition engine for this run")
		writeln("  -c, --config <path>     config file (default ~/.config/voicecmd/config.toml)")
		writeln("  Env: VOICECMD_BACKEND_URL=http://host:port, VOICECMD_ENGINE=text,")
		writeln("       VOICECMD_LOG_LEVEL=debug, VOICECMD_LOG_FORMAT=json")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
