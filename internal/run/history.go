package run

import (
	"io"
	"os"
	"strings"
	"time"

	"voicecmd/internal/control"
)

// The Server is the controller's Recorder: it counts sessions and keeps a
// tail of recognized commands.

func (s *Server) SessionStarted(string) { s.metrics.incSessions() }

func (s *Server) CommandRecognized(id, command string) {
	s.metrics.incCommands()
	s.recordCommand(control.Command{Session: id, Text: command, Timestamp: time.Now()})
}

func (s *Server) RelayFinished(id, _ string, err error) {
	outcome := "sent"
	if err != nil {
		s.metrics.incRelayFailed()
		outcome = "error: " + err.Error()
	} else {
		s.metrics.incRelayOK()
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Session == id {
			s.history[i].Outcome = outcome
			return
		}
	}
}

func (s *Server) RecognitionFailed(_ string, reason string) {
	s.metrics.incRecognitionErrors()
	s.logger.Debugf("recognition failed: %s", reason)
}

func (s *Server) recordCommand(entry control.Command) {
	if !s.cfg.History.Enabled {
		return
	}
	tail := s.cfg.UI.StatusTail
	if tail <= 0 {
		tail = 1
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.history = append(s.history, entry)
	if len(s.history) > tail {
		s.history = s.history[len(s.history)-tail:]
	}
	// append to file
	f, err := os.OpenFile(s.cfg.Paths.HistoryPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.logger.Warnf("open history: %v", err)
		return
	}
	if _, err := io.WriteString(f, historyLine(entry)); err != nil {
		s.logger.Warnf("write history: %v", err)
	}
	_ = f.Close()
}

var historyEscaper = strings.NewReplacer("\\", `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)

// historyLine formats one tab-separated record. Text is escaped so a record
// always stays on one line with three fields.
func historyLine(entry control.Command) string {
	return entry.Timestamp.Format(time.RFC3339) + "\t" + entry.Session + "\t" + historyEscaper.Replace(entry.Text) + "\n"
}

func (s *Server) copyHistory() []control.Command {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	out := make([]control.Command, len(s.history))
	copy(out, s.history)
	return out
}
