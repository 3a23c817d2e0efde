package recognition

import (
	"fmt"
	"strings"

	"voicecmd/internal/config"

	"github.com/sirupsen/logrus"
)

// Detect returns the engine named by recognition.engine. The text engine
// reads utterances from lines; a nil channel means it has no input source.
// Errors wrapping ErrUnsupported mean the environment has no usable engine.
func Detect(cfg *config.Config, logger *logrus.Logger, lines <-chan string) (Capability, error) {
	switch engine := strings.ToLower(strings.TrimSpace(cfg.Recognition.Engine)); engine {
	case "text":
		if lines == nil {
			return nil, fmt.Errorf("%w: text engine has no input", ErrUnsupported)
		}
		return NewTextCapability(lines, cfg.NoSpeechTimeout(), logger), nil
	case "whisper", "":
		return newWhisperCapability(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrUnsupported, engine)
	}
}
