package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voicecmd/internal/config"

	"github.com/sirupsen/logrus"
)

func TestConfigureWritesToRotatedFile(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.StateDir = dir
	cfg.Paths.LogPath = filepath.Join(dir, "logs", "voicecmd.log")
	cfg.Paths.HistoryPath = filepath.Join(dir, "commands.log")
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"

	logger, err := Configure(cfg)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %v", logger.GetLevel())
	}
	logger.Info("hidden")
	logger.Warn("visible")

	data, err := os.ReadFile(cfg.Paths.LogPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"visible"`) {
		t.Fatalf("unexpected log contents: %s", out)
	}
	if !strings.Contains(out, `"engine":"whisper"`) {
		t.Fatalf("unexpected log contents: %s", out)
	}
}

func TestConfigureIgnoresUnknownLevel(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.StateDir = dir
	cfg.Paths.LogPath = filepath.Join(dir, "voicecmd.log")
	cfg.Paths.HistoryPath = filepath.Join(dir, "commands.log")
	cfg.Logging.Level = "loud"

	logger, err := Configure(cfg)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected default info level, got %v", logger.GetLevel())
	}
	data, _ := os.ReadFile(cfg.Paths.LogPath)
	if !strings.Contains(string(data), `unknown log level \"loud\"`) {
		t.Fatalf("expected a warning about the level, got %s", data)
	}
}
