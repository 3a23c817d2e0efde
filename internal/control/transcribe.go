package control

import (
	"fmt"
	"strings"

	"voicecmd/internal/config"
	"voicecmd/internal/logging"
	"voicecmd/internal/recognition"
	"voicecmd/internal/relay"

	"github.com/spf13/cobra"
)

// NewTranscribeCmd transcribes a WAV file and optionally relays the result.
func NewTranscribeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <wavfile>",
		Short: "Transcribe a WAV file (needs a whisper build)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			txt, err := recognition.TranscribeFile(cfg, args[0])
			if err != nil {
				return err
			}
			txt = strings.TrimSpace(txt)
			fmt.Fprintln(cmd.OutOrStdout(), txt)

			if send, _ := cmd.Flags().GetBool("send"); !send {
				return nil
			}
			if txt == "" {
				return fmt.Errorf("nothing recognized")
			}
			client, err := relay.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			msg, err := client.Send(cmd.Context(), strings.ToLower(txt))
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
	cmd.Flags().Bool("send", false, "also relay the transcript to the backend")
	return cmd
}
