package player

import (
	"context"
	"fmt"
	"time"

	"voicecmd/internal/hook"
)

type commandKey struct{}

// WithCommand attaches the recognized phrase so the hook can see it.
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey{}, command)
}

func commandFrom(ctx context.Context) string {
	s, _ := ctx.Value(commandKey{}).(string)
	return s
}

// Hook runs an external command per action.
type Hook struct {
	runner *hook.Runner
}

func NewHook(r *hook.Runner) *Hook {
	return &Hook{runner: r}
}

func (h *Hook) Do(ctx context.Context, action string) (string, error) {
	out, err := h.runner.Run(ctx, hook.Job{
		Action:    action,
		Command:   commandFrom(ctx),
		Timestamp: time.Now(),
	})
	if err != nil {
		return "", err
	}
	if out == "" {
		out = fmt.Sprintf("Command '%s' sent", action)
	}
	return out, nil
}
