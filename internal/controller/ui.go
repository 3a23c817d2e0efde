package controller

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Button is an in-process activation control.
type Button struct {
	mu      sync.Mutex
	enabled bool
	changed chan struct{}
}

// NewButton returns a disabled button; the controller enables it once the
// capability check passes.
func NewButton() *Button {
	return &Button{changed: make(chan struct{})}
}

func (b *Button) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enabled == enabled {
		return
	}
	b.enabled = enabled
	close(b.changed)
	b.changed = make(chan struct{})
}

// Enabled reports whether the control accepts an activation.
func (b *Button) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// WaitEnabled blocks until the button is enabled or ctx ends.
func (b *Button) WaitEnabled(ctx context.Context) error {
	for {
		b.mu.Lock()
		if b.enabled {
			b.mu.Unlock()
			return nil
		}
		ch := b.changed
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// LineStatus writes each status update as its own line.
type LineStatus struct {
	mu sync.Mutex
	w  io.Writer
}

func NewLineStatus(w io.Writer) *LineStatus {
	return &LineStatus{w: w}
}

func (l *LineStatus) SetStatus(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintln(l.w, text)
}

// Statuses fans a status update out to several sinks.
type Statuses []StatusSink

func (s Statuses) SetStatus(text string) {
	for _, sink := range s {
		sink.SetStatus(text)
	}
}

// Toggles fans an enabled change out to several controls.
type Toggles []Toggle

func (t Toggles) SetEnabled(enabled bool) {
	for _, tg := range t {
		tg.SetEnabled(enabled)
	}
}
