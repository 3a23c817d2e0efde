package control

import (
	"fmt"
	"io"
	"os"
	"strings"

	"voicecmd/internal/config"
	"voicecmd/internal/doctor"
	"voicecmd/internal/logging"
	"voicecmd/internal/relay"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var status Status
			if err := Call(cfg.Paths.SocketPath, Request{Op: "status"}, &status); err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func printStatus(w io.Writer, status Status) {
	fmt.Fprintf(w, "running: %v\nuptime: %.1fs\nengine: %s\nstate: %s\nstatus: %s\nbackend: %s\n",
		status.Running, status.UptimeSec, status.Engine, status.State, status.Status, status.Backend)
	if status.Server != "" {
		fmt.Fprintf(w, "server: %s\n", status.Server)
	}
	for _, c := range status.Commands {
		line := fmt.Sprintf("%s  %s", c.Timestamp.Format("15:04:05"), c.Text)
		if c.Outcome != "" {
			line += "  (" + c.Outcome + ")"
		}
		fmt.Fprintln(w, line)
	}
}

// NewHealthCmd pings the daemon.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			msg, err := CallSimple(cfg.Paths.SocketPath, Request{Op: "health"})
			if err != nil {
				return err
			}
			cmd.Println(msg)
			return nil
		},
	}
}

// NewTriggerCmd presses the daemon's activation control.
func NewTriggerCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Start a listening session in the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			msg, err := CallSimple(cfg.Paths.SocketPath, Request{Op: "start"})
			if err != nil {
				return err
			}
			cmd.Println(msg)
			return nil
		},
	}
}

// NewSayCmd feeds an utterance to a daemon running the text engine.
func NewSayCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "say \"<utterance>\"",
		Short: "Speak a command to a daemon using the text engine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			_, err = CallSimple(cfg.Paths.SocketPath, Request{Op: "say", Text: strings.Join(args, " ")})
			return err
		},
	}
}

// NewSendCmd relays a command to the backend without recognition.
func NewSendCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "send \"<command>\"",
		Short: "POST a command to the backend and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			client, err := relay.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			command := strings.ToLower(strings.Join(args, " "))
			msg, err := client.Send(cmd.Context(), command)
			if err != nil {
				return fmt.Errorf("error sending command: %w", err)
			}
			if msg == "" {
				msg = "Command sent."
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

// NewConfigCmd groups config helpers.
func NewConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config (file plus env overrides)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			out, err := toml.Marshal(redacted(cfg))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", cfg.Paths.ConfigPath, out)
			return nil
		},
	})
	return cmd
}

func redacted(cfg *config.Config) *config.Config {
	c := *cfg
	for _, s := range []*string{&c.Player.Spotify.ClientSecret, &c.Player.Spotify.AccessToken} {
		if *s != "" {
			*s = "<redacted>"
		}
	}
	return &c
}

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show the last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			return tailFile(cmd.OutOrStdout(), cfg.Paths.LogPath, n)
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	return cmd
}

func tailFile(w io.Writer, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			fmt.Fprintln(w, l)
		}
	}
	return nil
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cmd.Context(), cfg)
			failed := false
			for _, r := range results {
				status := "ok"
				if !r.Pass {
					status = "fail"
					failed = true
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-4s %s\n", r.Name, status, r.Detail)
			}
			if failed {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}
