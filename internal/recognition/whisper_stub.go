//go:build !whisper

package recognition

import (
	"fmt"

	"voicecmd/internal/config"

	"github.com/sirupsen/logrus"
)

func newWhisperCapability(_ *config.Config, _ *logrus.Logger) (Capability, error) {
	return nil, fmt.Errorf("%w: build with -tags whisper for microphone input", ErrUnsupported)
}

// TranscribeFile needs the whisper build.
func TranscribeFile(_ *config.Config, _ string) (string, error) {
	return "", fmt.Errorf("%w: build with -tags whisper to transcribe files", ErrUnsupported)
}
