package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voicecmd/internal/config"
)

func writeConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.ConfigPath = filepath.Join(dir, "config.toml")
	cfg.Paths.PidPath = filepath.Join(dir, "voicecmd.pid")
	if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
		t.Fatalf("save cfg: %v", err)
	}
	return cfg
}

func TestWaitForShutdownSucceedsWhenPidFileRemoved(t *testing.T) {
	cfg := writeConfig(t)
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.Remove(cfg.Paths.PidPath)
	}()
	if err := waitForShutdown(cfg.Paths.ConfigPath, 2*time.Second); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestWaitForShutdownTimesOutOnAlivePid(t *testing.T) {
	cfg := writeConfig(t)
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if err := waitForShutdown(cfg.Paths.ConfigPath, 300*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestEnsureNotRunning(t *testing.T) {
	cfg := writeConfig(t)
	if err := ensureNotRunning(cfg); err != nil {
		t.Fatalf("no pid file: %v", err)
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if err := ensureNotRunning(cfg); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected already running, got %v", err)
	}
}

func TestReadPIDRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pid")
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readPID(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRuntimeEnvFromFlags(t *testing.T) {
	cmd := NewServeCmd(new(string))
	if env := runtimeEnv(cmd); len(env) != 0 {
		t.Fatalf("no flags set, got %v", env)
	}
	_ = cmd.Flags().Set("server-addr", "127.0.0.1:5000")
	_ = cmd.Flags().Set("engine", "text")
	env := runtimeEnv(cmd)
	want := []string{"VOICECMD_SERVER_ADDR=127.0.0.1:5000", "VOICECMD_ENGINE=text"}
	if strings.Join(env, ",") != strings.Join(want, ",") {
		t.Fatalf("env = %v, want %v", env, want)
	}
	k, v := splitEnv(env[0])
	if k != "VOICECMD_SERVER_ADDR" || v != "127.0.0.1:5000" {
		t.Fatalf("split = %q %q", k, v)
	}
}
