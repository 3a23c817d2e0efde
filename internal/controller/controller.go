// Package controller drives one voice command at a time: listen, recognize,
// relay the command to the backend and report the outcome as status text.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"voicecmd/internal/recognition"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Status texts shown to the user.
const (
	StatusUnsupported = "speech recognition not supported."
	StatusListening   = "🎤 Listening..."
	StatusSent        = "Command sent."
)

var (
	// ErrUnsupported is returned by Start when no capability was provided.
	ErrUnsupported = errors.New("speech recognition not supported")
	// ErrBusy is returned by Start while a session is active.
	ErrBusy = errors.New("already listening")
)

// State of the controller.
type State int

const (
	StateUnsupported State = iota
	StateIdle
	StateListening
)

func (s State) String() string {
	switch s {
	case StateUnsupported:
		return "unsupported"
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StatusSink displays the single status line.
type StatusSink interface {
	SetStatus(text string)
}

// Toggle is the activation control.
type Toggle interface {
	SetEnabled(enabled bool)
}

// Relay forwards a recognized command and returns the backend's message,
// which may be empty.
type Relay interface {
	Send(ctx context.Context, command string) (string, error)
}

// Recorder observes controller activity for metrics and history.
type Recorder interface {
	SessionStarted(id string)
	CommandRecognized(id, command string)
	RelayFinished(id, command string, err error)
	RecognitionFailed(id, reason string)
}

// Options wires a Controller. A nil Capability puts it in StateUnsupported.
type Options struct {
	Capability recognition.Capability
	Settings   recognition.Settings
	Status     StatusSink
	Toggle     Toggle
	Relay      Relay
	Recorder   Recorder
	Logger     *logrus.Logger
}

// Controller runs the listen, recognize, relay and report cycle. It observes
// each session it starts through a per-session adapter.
type Controller struct {
	capability recognition.Capability
	settings   recognition.Settings
	sink       StatusSink
	toggle     Toggle
	relay      Relay
	rec        Recorder
	logger     *logrus.Logger

	mu        sync.Mutex
	state     State
	status    string
	session   recognition.Session
	sessionID string
	ctx       context.Context

	inflight sync.WaitGroup
}

// New builds a controller and performs the capability check.
func New(opts Options) *Controller {
	c := &Controller{
		capability: opts.Capability,
		settings:   opts.Settings,
		sink:       opts.Status,
		toggle:     opts.Toggle,
		relay:      opts.Relay,
		rec:        opts.Recorder,
		logger:     opts.Logger,
		ctx:        context.Background(),
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if c.rec == nil {
		c.rec = nopRecorder{}
	}
	if c.settings.Language == "" {
		c.settings = recognition.DefaultSettings()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capability == nil {
		c.state = StateUnsupported
		c.logger.Error("speech recognition not supported")
		c.setStatusLocked(StatusUnsupported)
		c.setEnabledLocked(false)
		return c
	}
	c.state = StateIdle
	c.setEnabledLocked(true)
	return c
}

// Start begins a listening session. It is the activation control's action.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateUnsupported:
		c.mu.Unlock()
		return ErrUnsupported
	case StateListening:
		c.mu.Unlock()
		return ErrBusy
	}

	sess, err := c.capability.NewSession(c.settings)
	if err != nil {
		c.logger.Errorf("new recognition session: %v", err)
		c.setStatusLocked(recognitionErrorText(recognition.ReasonAudioCapture))
		c.mu.Unlock()
		return fmt.Errorf("new session: %w", err)
	}
	id := uuid.NewString()
	c.session = sess
	c.sessionID = id
	c.ctx = ctx
	c.state = StateListening
	c.setEnabledLocked(false)
	c.setStatusLocked(StatusListening)
	c.logger.WithField("session", id).Info("listening started")
	c.rec.SessionStarted(id)
	c.mu.Unlock()

	// Session callbacks take c.mu, so the session is started unlocked.
	if err := sess.Start(ctx, &observer{c: c, session: sess}); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.logger.WithField("session", id).Errorf("start recognition: %v", err)
		if c.session == sess {
			c.setStatusLocked(recognitionErrorText(recognition.ReasonAudioCapture))
			c.endLocked()
		}
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// Abort stops the active session, if any.
func (c *Controller) Abort() {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		sess.Abort()
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the last status text.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Wait blocks until every relayed command has settled.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

func (c *Controller) handleResult(sess recognition.Session, rs recognition.ResultSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sess {
		return
	}
	if len(rs) > 0 && !rs[0].Final {
		c.logger.Debug("ignoring interim result")
		return
	}
	transcript, ok := rs.FirstTranscript()
	if !ok {
		c.logger.Warn("recognition result without alternatives")
		return
	}
	command := strings.ToLower(transcript)
	id := c.sessionID
	log := c.logger.WithField("session", id)
	log.Infof("recognized command: %q", command)
	c.setStatusLocked(commandText(command))
	c.rec.CommandRecognized(id, command)

	if c.relay == nil {
		return
	}
	ctx := c.ctx
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		msg, err := c.relay.Send(ctx, command)
		c.rec.RelayFinished(id, command, err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			log.Errorf("error sending command: %v", err)
			c.setStatusLocked(sendErrorText(err))
			return
		}
		log.Infof("server response: %q", msg)
		if msg == "" {
			msg = StatusSent
		}
		c.setStatusLocked(msg)
	}()
}

func (c *Controller) handleError(sess recognition.Session, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sess {
		return
	}
	c.logger.WithField("session", c.sessionID).Errorf("recognition error: %s", reason)
	c.rec.RecognitionFailed(c.sessionID, reason)
	c.setStatusLocked(recognitionErrorText(reason))
	c.endLocked()
}

func (c *Controller) handleEnd(sess recognition.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sess {
		return
	}
	c.logger.WithField("session", c.sessionID).Info("listening stopped")
	c.endLocked()
}

// endLocked returns to Idle. Later events from the finished session are
// dropped, which makes error and end idempotent.
func (c *Controller) endLocked() {
	c.session = nil
	if c.state == StateListening {
		c.state = StateIdle
	}
	c.setEnabledLocked(true)
}

func (c *Controller) setStatusLocked(text string) {
	c.status = text
	if c.sink != nil {
		c.sink.SetStatus(text)
	}
}

func (c *Controller) setEnabledLocked(enabled bool) {
	if c.state == StateUnsupported {
		enabled = false
	}
	if c.toggle != nil {
		c.toggle.SetEnabled(enabled)
	}
}

// commandText shows the transcript verbatim between quotes.
func commandText(command string) string {
	return "🗣 Your Command: \"" + command + "\""
}

func recognitionErrorText(reason string) string {
	return "Recognition error: " + reason
}

func sendErrorText(err error) string {
	return "Error sending command: " + err.Error()
}

// observer binds session callbacks to the session that produced them so a
// late event from an old session cannot touch a newer one.
type observer struct {
	c       *Controller
	session recognition.Session
}

func (o *observer) OnResult(rs recognition.ResultSet) { o.c.handleResult(o.session, rs) }
func (o *observer) OnError(reason string)             { o.c.handleError(o.session, reason) }
func (o *observer) OnEnd()                            { o.c.handleEnd(o.session) }

type nopRecorder struct{}

func (nopRecorder) SessionStarted(string)              {}
func (nopRecorder) CommandRecognized(string, string)   {}
func (nopRecorder) RelayFinished(string, string, error) {}
func (nopRecorder) RecognitionFailed(string, string)   {}
