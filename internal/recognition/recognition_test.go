package recognition

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voicecmd/internal/config"
	"voicecmd/internal/logging"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	done   chan struct{}
}

func newRecorder() *recorder { return &recorder{done: make(chan struct{})} }

func (r *recorder) OnResult(rs ResultSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, _ := rs.FirstTranscript()
	kind := "result:"
	if !rs[0].Final {
		kind = "interim:"
	}
	r.events = append(r.events, kind+text)
}

func (r *recorder) OnError(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "error:"+reason)
}

func (r *recorder) OnEnd() {
	r.mu.Lock()
	r.events = append(r.events, "end")
	r.mu.Unlock()
	close(r.done)
}

func (r *recorder) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not end")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTextSessionEvents(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		settings Settings
		want     []string
	}{
		{"final result", "Play Music", DefaultSettings(), []string{"result:Play Music", "end"}},
		{"empty line", "   ", DefaultSettings(), []string{"error:no-speech", "end"}},
		{"simulated error", "!not-allowed", DefaultSettings(), []string{"error:not-allowed", "end"}},
		{"interim first", "next", Settings{Language: "en-US", InterimResults: true}, []string{"interim:next", "result:next", "end"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines := make(chan string, 1)
			lines <- tc.line
			capability := NewTextCapability(lines, 0, logging.NewTestLogger())
			sess, err := capability.NewSession(tc.settings)
			if err != nil {
				t.Fatalf("new session: %v", err)
			}
			rec := newRecorder()
			if err := sess.Start(context.Background(), rec); err != nil {
				t.Fatalf("start: %v", err)
			}
			if got := rec.wait(t); !equal(got, tc.want) {
				t.Fatalf("events = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTextSessionNoSpeechTimeout(t *testing.T) {
	capability := NewTextCapability(make(chan string), 20*time.Millisecond, nil)
	sess, _ := capability.NewSession(DefaultSettings())
	rec := newRecorder()
	if err := sess.Start(context.Background(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := rec.wait(t); !equal(got, []string{"error:no-speech", "end"}) {
		t.Fatalf("events = %v", got)
	}
}

func TestTextSessionAbort(t *testing.T) {
	capability := NewTextCapability(make(chan string), 0, nil)
	sess, _ := capability.NewSession(DefaultSettings())
	rec := newRecorder()
	if err := sess.Start(context.Background(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess.Abort()
	if got := rec.wait(t); !equal(got, []string{"error:aborted", "end"}) {
		t.Fatalf("events = %v", got)
	}
	if err := sess.Start(context.Background(), newRecorder()); err == nil {
		t.Fatalf("restarting a session should fail")
	}
}

func TestTextSessionContinuous(t *testing.T) {
	lines := make(chan string, 3)
	lines <- "play"
	lines <- "pause"
	close(lines)
	capability := NewTextCapability(lines, 0, nil)
	sess, _ := capability.NewSession(Settings{Language: "en-US", Continuous: true})
	rec := newRecorder()
	if err := sess.Start(context.Background(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	want := []string{"result:play", "result:pause", "error:aborted", "end"}
	if got := rec.wait(t); !equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestFirstTranscript(t *testing.T) {
	if _, ok := (ResultSet{}).FirstTranscript(); ok {
		t.Fatalf("empty set has no transcript")
	}
	if _, ok := (ResultSet{{}}).FirstTranscript(); ok {
		t.Fatalf("result without alternatives has no transcript")
	}
	rs := ResultSet{{Alternatives: []Alternative{{Transcript: "first", Confidence: 0.4}, {Transcript: "second", Confidence: 0.9}}}}
	if got, ok := rs.FirstTranscript(); !ok || got != "first" {
		t.Fatalf("FirstTranscript = %q, %v", got, ok)
	}
}

func TestWhisperLanguage(t *testing.T) {
	cases := map[string]string{
		"en-US": "en",
		"de_DE": "de",
		"FR":    "fr",
		"":      "auto",
		"auto":  "auto",
	}
	for in, want := range cases {
		if got := WhisperLanguage(in); got != want {
			t.Fatalf("WhisperLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetect(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Recognition.Engine = "text"
	if _, err := Detect(cfg, nil, nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("text engine without input should be unsupported, got %v", err)
	}
	c, err := Detect(cfg, nil, make(chan string))
	if err != nil || c.Name() != "text" {
		t.Fatalf("detect text: %v %v", c, err)
	}
	cfg.Recognition.Engine = "vosk"
	if _, err := Detect(cfg, nil, nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("unknown engine should be unsupported, got %v", err)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := WriteWAV(path, []int16{0, 16384, -16384, 32767}, 16000); err != nil {
		t.Fatalf("write: %v", err)
	}
	samples, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rate != 16000 || len(samples) != 4 {
		t.Fatalf("rate=%d len=%d", rate, len(samples))
	}
	if samples[1] != 0.5 || samples[2] != -0.5 {
		t.Fatalf("unexpected samples %v", samples)
	}
}

func TestResampleLength(t *testing.T) {
	in := []float32{0, 1, 2, 3}
	if out := Resample(in, 16000, 8000); len(out) != 2 {
		t.Fatalf("downsample length got %d", len(out))
	}
	if out := Resample(in, 8000, 16000); len(out) != 8 {
		t.Fatalf("upsample length got %d", len(out))
	}
	out := Resample([]float32{0, 10}, 1000, 2000)
	if out[0] != 0 || out[len(out)-1] != 10 {
		t.Fatalf("endpoints not preserved: %v", out)
	}
}
