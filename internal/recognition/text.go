package recognition

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TextCapability treats each line from a channel as a spoken utterance.
// An empty line reports no-speech and "!<reason>" reports that error.
type TextCapability struct {
	lines    <-chan string
	noSpeech time.Duration
	logger   *logrus.Logger
}

// NewTextCapability reads utterances from lines. A zero noSpeech waits forever.
func NewTextCapability(lines <-chan string, noSpeech time.Duration, logger *logrus.Logger) *TextCapability {
	return &TextCapability{lines: lines, noSpeech: noSpeech, logger: logger}
}

func (c *TextCapability) Name() string { return "text" }

func (c *TextCapability) NewSession(s Settings) (Session, error) {
	return &textSession{cap: c, settings: s}, nil
}

type textSession struct {
	cap      *TextCapability
	settings Settings

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

func (s *textSession) Start(ctx context.Context, obs Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("session already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx, obs)
	return nil
}

func (s *textSession) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *textSession) run(ctx context.Context, obs Observer) {
	defer obs.OnEnd()
	defer s.Abort()
	for {
		if !s.next(ctx, obs) || !s.settings.Continuous {
			return
		}
	}
}

// next waits for one utterance and reports whether the session may continue.
func (s *textSession) next(ctx context.Context, obs Observer) bool {
	var timeout <-chan time.Time
	if s.cap.noSpeech > 0 {
		t := time.NewTimer(s.cap.noSpeech)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		obs.OnError(ReasonAborted)
		return false
	case <-timeout:
		obs.OnError(ReasonNoSpeech)
		return false
	case line, ok := <-s.cap.lines:
		if !ok {
			obs.OnError(ReasonAborted)
			return false
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			obs.OnError(ReasonNoSpeech)
			return false
		case strings.HasPrefix(line, "!"):
			obs.OnError(strings.TrimSpace(strings.TrimPrefix(line, "!")))
			return false
		}
		if s.settings.InterimResults {
			obs.OnResult(ResultSet{{Alternatives: []Alternative{{Transcript: line}}}})
		}
		if s.cap.logger != nil {
			s.cap.logger.Debugf("text utterance: %q", line)
		}
		obs.OnResult(Single(line, 1))
		return true
	}
}
