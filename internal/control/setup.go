package control

import (
	"fmt"
	"os"
	"path/filepath"

	"voicecmd/internal/config"

	"github.com/spf13/cobra"
)

// NewSetupCmd writes the config file and downloads the configured model if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Write default config and download the whisper model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := config.MustStatePaths(cfg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "config:", cfg.Paths.ConfigPath)
			if cfg.Recognition.Engine != "whisper" {
				fmt.Fprintf(out, "engine %q needs no model\n", cfg.Recognition.Engine)
				return nil
			}
			modelPath := os.ExpandEnv(cfg.ASR.ModelPath)
			if _, err := os.Stat(modelPath); err == nil {
				fmt.Fprintln(out, "model already present at", modelPath)
				return nil
			}
			url, ok := modelRegistry[filepath.Base(modelPath)]
			if !ok {
				return fmt.Errorf("model %s missing and not in the registry; use models download", modelPath)
			}
			fmt.Fprintf(out, "downloading model to %s\n", modelPath)
			if err := downloadFile(cmd.Context(), url, modelPath); err != nil {
				return err
			}
			fmt.Fprintln(out, "model download complete")
			return nil
		},
	}
}
