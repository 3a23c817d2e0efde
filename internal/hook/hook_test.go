package hook

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"voicecmd/internal/config"
	"voicecmd/internal/logging"
)

func TestShouldRunCooldown(t *testing.T) {
	cfg := config.HookConfig{Command: "/bin/echo", CooldownSec: 0.2}
	r := NewRunner(cfg, logging.NewTestLogger())

	if !r.ShouldRun() {
		t.Fatalf("first call should run")
	}
	if _, err := r.Run(context.Background(), Job{Action: "play", Timestamp: time.Now()}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.ShouldRun() {
		t.Fatalf("cooldown should block immediate subsequent run")
	}
	if _, err := r.Run(context.Background(), Job{Action: "play"}); !errors.Is(err, ErrCooldown) {
		t.Fatalf("expected cooldown error, got %v", err)
	}
	time.Sleep(time.Duration(cfg.CooldownSec*float64(time.Second)) + 20*time.Millisecond)
	if !r.ShouldRun() {
		t.Fatalf("should run after cooldown")
	}
}

func TestRunAppendsActionAndEnv(t *testing.T) {
	cfg := config.HookConfig{
		Command:   "/bin/sh",
		ArgsLine:  `-c 'echo "$1 $VOICECMD_ACTION $VOICECMD_COMMAND $EXTRA"' hook`,
		Env:       map[string]string{"EXTRA": "x"},
		RedactPII: true,
	}
	r := NewRunner(cfg, logging.NewTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := r.Run(ctx, Job{Action: "next", Command: "next song for bob@example.com"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "next next next song for [redacted-email] x"
	if out != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
}

func TestRunFailures(t *testing.T) {
	r := NewRunner(config.HookConfig{}, nil)
	if _, err := r.Run(context.Background(), Job{Action: "play"}); err == nil {
		t.Fatalf("expected error without command")
	}
	r = NewRunner(config.HookConfig{Command: "/bin/sh", Args: []string{"-c", "echo boom; exit 3"}}, nil)
	out, err := r.Run(context.Background(), Job{Action: "pause"})
	if err == nil || !strings.Contains(err.Error(), "hook failed") {
		t.Fatalf("expected hook failure, got %v", err)
	}
	if out != "boom" {
		t.Fatalf("output = %q", out)
	}
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs(`--flag "two words" plain`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(args) != 3 || args[1] != "two words" {
		t.Fatalf("args = %#v", args)
	}
	if args, _ := ParseArgs("  "); len(args) != 0 {
		t.Fatalf("blank args should be empty: %#v", args)
	}
}
