// Package recognition defines the speech-recognition capability the
// controller drives, plus the engines that implement it.
package recognition

import (
	"context"
	"errors"
	"strings"

	"voicecmd/internal/config"
)

// Error reasons reported through Observer.OnError.
const (
	ReasonNoSpeech             = "no-speech"
	ReasonAborted              = "aborted"
	ReasonAudioCapture         = "audio-capture"
	ReasonNetwork              = "network"
	ReasonNotAllowed           = "not-allowed"
	ReasonLanguageNotSupported = "language-not-supported"
	ReasonTranscription        = "transcription-failed"
)

// ErrUnsupported means no recognition engine is available in this build or environment.
var ErrUnsupported = errors.New("speech recognition not supported")

// Settings configures one session.
type Settings struct {
	Language       string
	Continuous     bool
	InterimResults bool
}

// DefaultSettings is a single final-only utterance in US English.
func DefaultSettings() Settings {
	return Settings{Language: config.DefaultLanguage}
}

// SettingsFromConfig reads the [recognition] section.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := Settings{
		Language:       cfg.Recognition.Language,
		Continuous:     cfg.Recognition.Continuous,
		InterimResults: cfg.Recognition.InterimResults,
	}
	if strings.TrimSpace(s.Language) == "" {
		s.Language = config.DefaultLanguage
	}
	return s
}

// Alternative is one candidate transcript.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Result holds the candidates for one utterance, best first.
type Result struct {
	Alternatives []Alternative
	Final        bool
}

// ResultSet is what a session delivers on a recognition event.
type ResultSet []Result

// FirstTranscript returns the first alternative of the first result.
func (rs ResultSet) FirstTranscript() (string, bool) {
	if len(rs) == 0 || len(rs[0].Alternatives) == 0 {
		return "", false
	}
	return rs[0].Alternatives[0].Transcript, true
}

// Single wraps one final transcript.
func Single(transcript string, confidence float64) ResultSet {
	return ResultSet{{
		Alternatives: []Alternative{{Transcript: transcript, Confidence: confidence}},
		Final:        true,
	}}
}

// Observer receives session events. A session calls it from a single
// goroutine, and OnEnd is always its last call.
type Observer interface {
	OnResult(ResultSet)
	OnError(reason string)
	OnEnd()
}

// Session is one listening attempt.
type Session interface {
	// Start begins listening and returns without waiting for speech.
	Start(ctx context.Context, obs Observer) error
	// Abort stops the session; the observer still gets OnError("aborted") and OnEnd.
	Abort()
}

// Capability creates sessions.
type Capability interface {
	Name() string
	NewSession(Settings) (Session, error)
}
