package run

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"voicecmd/internal/config"
	"voicecmd/internal/controller"
	"voicecmd/internal/recognition"
	"voicecmd/internal/relay"

	"github.com/sirupsen/logrus"
)

const (
	promptMic  = "Press Enter to speak, q to quit."
	promptText = "Type a command (empty line for silence, !<reason> for an error, q to quit)."
)

// Listen is the terminal front end: each line on in activates the control
// once, status updates are written to out.
func Listen(ctx context.Context, cfg *config.Config, logger *logrus.Logger, in io.Reader, out io.Writer) error {
	rel, err := relay.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	var lines chan string
	prompt := promptMic
	if strings.EqualFold(cfg.Recognition.Engine, "text") {
		lines = make(chan string)
		prompt = promptText
	}
	capability, err := recognition.Detect(cfg, logger, lines)
	if err != nil {
		logger.Warnf("recognition: %v", err)
	}
	if c, ok := capability.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	status := controller.NewLineStatus(out)
	button := controller.NewButton()
	ctrl := controller.New(controller.Options{
		Capability: capability,
		Settings:   recognition.SettingsFromConfig(cfg),
		Status:     status,
		Toggle:     button,
		Relay:      rel,
		Logger:     logger,
	})
	if ctrl.State() == controller.StateUnsupported {
		return fmt.Errorf("%w (engine %q)", controller.ErrUnsupported, cfg.Recognition.Engine)
	}

	input := make(chan string)
	go func() {
		defer close(input)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case input <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	defer ctrl.Wait()
	for {
		// the control is disabled until the previous session has ended
		if err := button.WaitEnabled(ctx); err != nil {
			return nil
		}
		ctrl.Wait()
		status.SetStatus(prompt)

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-input:
		}
		if !ok || strings.TrimSpace(line) == "q" {
			return nil
		}
		if err := ctrl.Start(ctx); err != nil {
			logger.Debugf("start: %v", err)
			continue
		}
		if lines == nil {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			ctrl.Abort()
			return nil
		}
	}
}
