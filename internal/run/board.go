package run

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Board is the daemon's status line: it keeps the latest text and logs
// every change.
type Board struct {
	logger *logrus.Logger

	mu   sync.Mutex
	last string
}

func NewBoard(logger *logrus.Logger) *Board {
	return &Board{logger: logger}
}

func (b *Board) SetStatus(text string) {
	b.mu.Lock()
	b.last = text
	b.mu.Unlock()
	b.logger.WithField("component", "status").Info(text)
}

func (b *Board) Last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}
