// Package hook runs an external command for each player action.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"voicecmd/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// ErrCooldown is returned when a run is attempted inside the cooldown window.
var ErrCooldown = errors.New("hook cooldown active")

// Job represents a hook invocation request.
type Job struct {
	Action    string
	Command   string
	Timestamp time.Time
}

// Runner executes the configured hook with cooldown handling.
type Runner struct {
	cfg     config.HookConfig
	logger  *logrus.Logger
	lastRun time.Time
	mu      sync.Mutex
}

func NewRunner(cfg config.HookConfig, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// ShouldRun returns whether cooldown allows a new hook.
func (r *Runner) ShouldRun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shouldRunLocked()
}

func (r *Runner) shouldRunLocked() bool {
	if r.cfg.CooldownSec <= 0 || r.lastRun.IsZero() {
		return true
	}
	return time.Since(r.lastRun).Seconds() >= r.cfg.CooldownSec
}

// Run executes the hook with the action as its last argument and returns the
// trimmed combined output.
func (r *Runner) Run(ctx context.Context, job Job) (string, error) {
	r.mu.Lock()
	if !r.shouldRunLocked() {
		r.mu.Unlock()
		return "", ErrCooldown
	}
	r.lastRun = time.Now()
	r.mu.Unlock()

	cmdStr := r.cfg.Command
	if cmdStr == "" {
		return "", fmt.Errorf("no player.hook.command configured")
	}
	args, err := r.args()
	if err != nil {
		return "", err
	}
	args = append(args, job.Action)

	text := job.Command
	if r.cfg.RedactPII {
		text = redactPII(text)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.TimeoutSec > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(float64(time.Second)*r.cfg.TimeoutSec))
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, cmdStr, args...)
	cmd.Env = os.Environ()
	for k, v := range r.cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env, fmt.Sprintf("VOICECMD_ACTION=%s", job.Action))
	cmd.Env = append(cmd.Env, fmt.Sprintf("VOICECMD_COMMAND=%s", text))

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if output != "" {
		r.logger.Infof("hook output: %s", output)
	}
	if err != nil {
		return output, fmt.Errorf("hook failed: %w", err)
	}
	return output, nil
}

func (r *Runner) args() ([]string, error) {
	if strings.TrimSpace(r.cfg.ArgsLine) != "" {
		args, err := ParseArgs(r.cfg.ArgsLine)
		if err != nil {
			return nil, fmt.Errorf("parse player.hook.args_line: %w", err)
		}
		return args, nil
	}
	return append([]string{}, r.cfg.Args...), nil
}

// ParseArgs allows hook args to be configured as a single string.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

var (
	emailRE = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{6,}\d`)
)

func redactPII(s string) string {
	s = emailRE.ReplaceAllString(s, "[redacted-email]")
	s = phoneRE.ReplaceAllString(s, "[redacted-phone]")
	return s
}
