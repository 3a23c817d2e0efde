package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"voicecmd/internal/logging"
	"voicecmd/internal/recognition"
	"voicecmd/internal/relay"
)

type fakeSession struct {
	settings recognition.Settings
	startErr error

	mu      sync.Mutex
	obs     recognition.Observer
	aborted bool
}

func (s *fakeSession) Start(_ context.Context, obs recognition.Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = obs
	return s.startErr
}

func (s *fakeSession) Abort() {
	s.mu.Lock()
	s.aborted = true
	obs := s.obs
	s.mu.Unlock()
	obs.OnError(recognition.ReasonAborted)
	obs.OnEnd()
}

func (s *fakeSession) result(text string) { s.obs.OnResult(recognition.Single(text, 0.9)) }

type fakeCapability struct {
	mu       sync.Mutex
	sessions []*fakeSession
	startErr error
}

func (f *fakeCapability) Name() string { return "fake" }

func (f *fakeCapability) NewSession(s recognition.Settings) (recognition.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := &fakeSession{settings: s, startErr: f.startErr}
	f.sessions = append(f.sessions, sess)
	return sess, nil
}

func (f *fakeCapability) last() *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[len(f.sessions)-1]
}

type statusLog struct {
	mu    sync.Mutex
	lines []string
}

func (s *statusLog) SetStatus(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *statusLog) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return ""
	}
	return s.lines[len(s.lines)-1]
}

type enableLog struct {
	mu     sync.Mutex
	values []bool
}

func (e *enableLog) SetEnabled(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values = append(e.values, v)
}

type relayFunc func(ctx context.Context, command string) (string, error)

func (f relayFunc) Send(ctx context.Context, command string) (string, error) { return f(ctx, command) }

type fixture struct {
	cap    *fakeCapability
	status *statusLog
	button *Button
	ctrl   *Controller
}

func newFixture(t *testing.T, r Relay) *fixture {
	t.Helper()
	f := &fixture{cap: &fakeCapability{}, status: &statusLog{}, button: NewButton()}
	f.ctrl = New(Options{
		Capability: f.cap,
		Settings:   recognition.DefaultSettings(),
		Status:     f.status,
		Toggle:     f.button,
		Relay:      r,
		Logger:     logging.NewTestLogger(),
	})
	return f
}

func backend(t *testing.T, status int, body string) Relay {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	c, err := relay.New(srv.URL, "/voice_control", 0, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	return c
}

func TestUnsupportedIsTerminal(t *testing.T) {
	status := &statusLog{}
	toggle := &enableLog{}
	ctrl := New(Options{Status: status, Toggle: toggle, Logger: logging.NewTestLogger()})

	if ctrl.State() != StateUnsupported {
		t.Fatalf("state = %v", ctrl.State())
	}
	if status.last() != StatusUnsupported {
		t.Fatalf("status = %q", status.last())
	}
	if err := ctrl.Start(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("start err = %v", err)
	}
	for _, v := range toggle.values {
		if v {
			t.Fatalf("control enabled while unsupported: %v", toggle.values)
		}
	}
}

func TestStartOpensOneSession(t *testing.T) {
	f := newFixture(t, nil)
	if !f.button.Enabled() || f.ctrl.State() != StateIdle {
		t.Fatalf("expected idle with enabled control")
	}
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess := f.cap.last()
	if sess.settings != (recognition.Settings{Language: "en-US"}) {
		t.Fatalf("settings = %+v", sess.settings)
	}
	if f.button.Enabled() || f.ctrl.State() != StateListening {
		t.Fatalf("expected listening with disabled control")
	}
	if f.status.last() != StatusListening {
		t.Fatalf("status = %q", f.status.last())
	}
	if err := f.ctrl.Start(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second start err = %v", err)
	}
	if len(f.cap.sessions) != 1 {
		t.Fatalf("sessions = %d", len(f.cap.sessions))
	}
}

func TestResultShowsCommandBeforeRelaySettles(t *testing.T) {
	release := make(chan struct{})
	var got string
	f := newFixture(t, relayFunc(func(ctx context.Context, command string) (string, error) {
		got = command
		<-release
		return "Playing", nil
	}))
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.cap.last().result("Play Some JAZZ")

	if want := `🗣 Your Command: "play some jazz"`; f.status.last() != want {
		t.Fatalf("status before reply = %q, want %q", f.status.last(), want)
	}
	if f.ctrl.State() != StateListening || f.button.Enabled() {
		t.Fatalf("control must stay disabled until end")
	}
	close(release)
	f.ctrl.Wait()
	if got != "play some jazz" {
		t.Fatalf("relayed %q", got)
	}
	if f.status.last() != "Playing" {
		t.Fatalf("final status = %q", f.status.last())
	}
}

func TestCommandStatusKeepsTranscriptVerbatim(t *testing.T) {
	cases := []struct {
		heard string
		want  string
	}{
		{`Play "Hey Jude"`, `🗣 Your Command: "play "hey jude""`},
		{`AC\DC`, `🗣 Your Command: "ac\dc"`},
		{"play\tmusic", "🗣 Your Command: \"play\tmusic\""},
	}
	for _, tc := range cases {
		t.Run(tc.heard, func(t *testing.T) {
			f := newFixture(t, nil)
			if err := f.ctrl.Start(context.Background()); err != nil {
				t.Fatalf("start: %v", err)
			}
			f.cap.last().result(tc.heard)
			if got := f.status.last(); got != tc.want {
				t.Fatalf("status = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRelayOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(string) bool
	}{
		{"message", 200, `{"message": "Volume set to 50%"}`, func(s string) bool { return s == "Volume set to 50%" }},
		{"no message", 200, `{}`, func(s string) bool { return s == "Command sent." }},
		{"empty message", 200, `{"message": ""}`, func(s string) bool { return s == "Command sent." }},
		{"http 500", 500, `{"status":"error"}`, func(s string) bool {
			return strings.HasPrefix(s, "Error sending command") && strings.Contains(s, "500")
		}},
		{"bad json", 200, `not json`, func(s string) bool { return strings.HasPrefix(s, "Error sending command: decode response") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, backend(t, tc.status, tc.body))
			if err := f.ctrl.Start(context.Background()); err != nil {
				t.Fatalf("start: %v", err)
			}
			sess := f.cap.last()
			sess.result("volume fifty")
			sess.obs.OnEnd()
			f.ctrl.Wait()
			if got := f.status.last(); !tc.check(got) {
				t.Fatalf("final status = %q", got)
			}
			if !f.button.Enabled() {
				t.Fatalf("control should be enabled after end")
			}
		})
	}
}

func TestTransportFailureSurfacesMessage(t *testing.T) {
	f := newFixture(t, relayFunc(func(context.Context, string) (string, error) {
		return "", &relay.TransportError{Err: errors.New("connection refused")}
	}))
	_ = f.ctrl.Start(context.Background())
	f.cap.last().result("next")
	f.ctrl.Wait()
	if got := f.status.last(); got != "Error sending command: connection refused" {
		t.Fatalf("status = %q", got)
	}
}

func TestRecognitionErrorReenables(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.ctrl.Start(context.Background())
	sess := f.cap.last()
	sess.obs.OnError("no-speech")

	if got := f.status.last(); !strings.Contains(got, "no-speech") {
		t.Fatalf("status = %q", got)
	}
	if !f.button.Enabled() || f.ctrl.State() != StateIdle {
		t.Fatalf("expected idle with enabled control after error")
	}
	sess.obs.OnEnd()
	if !f.button.Enabled() {
		t.Fatalf("end after error must leave the control enabled")
	}
}

func TestRepeatedCyclesEndEnabled(t *testing.T) {
	var sent int
	f := newFixture(t, relayFunc(func(context.Context, string) (string, error) {
		sent++
		return "", nil
	}))
	for i := 0; i < 5; i++ {
		if err := f.ctrl.Start(context.Background()); err != nil {
			t.Fatalf("cycle %d start: %v", i, err)
		}
		sess := f.cap.last()
		sess.result("pause")
		sess.obs.OnEnd()
		f.ctrl.Wait()
		if !f.button.Enabled() || f.ctrl.State() != StateIdle {
			t.Fatalf("cycle %d left control disabled", i)
		}
	}
	if sent != 5 {
		t.Fatalf("sent = %d", sent)
	}
}

func TestStaleSessionEventsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.ctrl.Start(context.Background())
	old := f.cap.last()
	old.obs.OnEnd()

	_ = f.ctrl.Start(context.Background())
	old.obs.OnError("aborted")
	old.obs.OnEnd()
	if f.ctrl.State() != StateListening || f.button.Enabled() {
		t.Fatalf("old session events must not end the new session")
	}
	if f.status.last() != StatusListening {
		t.Fatalf("status = %q", f.status.last())
	}
}

func TestSessionStartFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t, nil)
	f.cap.startErr = errors.New("device busy")
	if err := f.ctrl.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if f.ctrl.State() != StateIdle || !f.button.Enabled() {
		t.Fatalf("expected idle after failed start")
	}
	if !strings.Contains(f.status.last(), "audio-capture") {
		t.Fatalf("status = %q", f.status.last())
	}
}

func TestAbortEndsSession(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.ctrl.Start(context.Background())
	f.ctrl.Abort()
	if f.ctrl.State() != StateIdle || !f.button.Enabled() {
		t.Fatalf("abort should return to idle")
	}
	if !f.cap.last().aborted {
		t.Fatalf("session not aborted")
	}
}

func TestButtonWaitEnabled(t *testing.T) {
	b := NewButton()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.WaitEnabled(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		b.SetEnabled(true)
	}()
	if err := b.WaitEnabled(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateIdle.String() != "idle" || StateListening.String() != "listening" || StateUnsupported.String() != "unsupported" {
		t.Fatalf("unexpected state names")
	}
}
