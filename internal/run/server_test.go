package run

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voicecmd/internal/config"
	"voicecmd/internal/control"
	"voicecmd/internal/logging"

	"github.com/goccy/go-json"
)

func testBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Command string `json:"command"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if strings.Contains(req.Command, "play") {
			_, _ = w.Write([]byte(`{"message":"Playing"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	cfg, _ := config.Default()
	// unix socket paths must stay short
	dir, err := os.MkdirTemp("", "vc")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	cfg.Paths.StateDir = dir
	cfg.Paths.SocketPath = filepath.Join(dir, "s.sock")
	cfg.Paths.PidPath = filepath.Join(dir, "pid")
	cfg.Paths.LogPath = filepath.Join(dir, "log")
	cfg.Paths.HistoryPath = filepath.Join(dir, "history")
	cfg.Recognition.Engine = "text"
	cfg.Recognition.NoSpeechTimeoutSec = 0
	cfg.Backend.URL = backendURL
	return cfg
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestListenTextCycle(t *testing.T) {
	cfg := testConfig(t, testBackend(t).URL)
	out := &syncBuffer{}
	in := strings.NewReader("Play Music\n\nsing\nq\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Listen(ctx, cfg, logging.NewTestLogger(), in, out); err != nil {
		t.Fatalf("listen: %v", err)
	}
	want := []string{
		promptText,
		"🎤 Listening...",
		`🗣 Your Command: "play music"`,
		"Playing",
		promptText,
		"🎤 Listening...",
		"Recognition error: no-speech",
		promptText,
		"🎤 Listening...",
		`🗣 Your Command: "sing"`,
		"Error sending command: HTTP error! Status: 400",
		promptText,
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("output:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestListenUnsupportedEngine(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Recognition.Engine = "vosk"
	out := &syncBuffer{}
	err := Listen(context.Background(), cfg, logging.NewTestLogger(), strings.NewReader(""), out)
	if err == nil {
		t.Fatalf("expected unsupported error")
	}
	if !strings.Contains(out.String(), "speech recognition not supported.") {
		t.Fatalf("output = %q", out.String())
	}
}

func request(t *testing.T, socket string, req control.Request, resp any) {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", socket)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		t.Fatalf("encode: %v", err)
	}
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(line, resp); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
}

func TestServerControlSocket(t *testing.T) {
	cfg := testConfig(t, testBackend(t).URL)
	srv, err := NewServer(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	var health control.SimpleResponse
	request(t, cfg.Paths.SocketPath, control.Request{Op: "health"}, &health)
	if !health.OK {
		t.Fatalf("health = %+v", health)
	}

	var said control.SimpleResponse
	request(t, cfg.Paths.SocketPath, control.Request{Op: "say", Text: "play jazz"}, &said)
	if !said.OK {
		t.Fatalf("say = %+v", said)
	}

	var st control.Status
	deadline := time.Now().Add(2 * time.Second)
	for {
		request(t, cfg.Paths.SocketPath, control.Request{Op: "status"}, &st)
		if st.Status == "Playing" && st.Enabled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never settled: %+v", st)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if st.Engine != "text" || st.State != "idle" {
		t.Fatalf("status = %+v", st)
	}
	if len(st.Commands) != 1 || st.Commands[0].Text != "play jazz" || st.Commands[0].Outcome != "sent" {
		t.Fatalf("commands = %+v", st.Commands)
	}
	history, err := os.ReadFile(cfg.Paths.HistoryPath)
	if err != nil || !strings.Contains(string(history), "play jazz") {
		t.Fatalf("history file = %q, %v", history, err)
	}

	rec := httptest.NewRecorder()
	srv.metricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, want := range []string{"voicecmd_sessions_total 1", "voicecmd_commands_total 1", "voicecmd_relay_ok_total 1"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("metrics missing %q:\n%s", want, rec.Body.String())
		}
	}

	var unknown control.SimpleResponse
	request(t, cfg.Paths.SocketPath, control.Request{Op: "reload"}, &unknown)
	if unknown.OK {
		t.Fatalf("unknown op should fail")
	}
}

func TestSayNeedsTextEngine(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Recognition.Engine = "vosk"
	srv, err := NewServer(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if resp := srv.say(context.Background(), "play"); resp.OK {
		t.Fatalf("say should fail without text engine")
	}
	if resp := srv.start(context.Background()); resp.OK || !strings.Contains(resp.Message, "not supported") {
		t.Fatalf("start = %+v", resp)
	}
}

func TestHistoryLineStaysOnOneLine(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		text string
		want string
	}{
		{"play jazz", "play jazz"},
		{"play\tmusic", `play\tmusic`},
		{"next\nsong\r", `next\nsong\r`},
		{`ac\dc`, `ac\\dc`},
	}
	for _, tc := range cases {
		line := historyLine(control.Command{Session: "s1", Text: tc.text, Timestamp: ts})
		if strings.Count(line, "\n") != 1 || !strings.HasSuffix(line, "\n") {
			t.Fatalf("line for %q is not a single record: %q", tc.text, line)
		}
		fields := strings.Split(strings.TrimSuffix(line, "\n"), "\t")
		if len(fields) != 3 {
			t.Fatalf("fields for %q = %q", tc.text, fields)
		}
		if fields[0] != "2024-05-01T12:00:00Z" || fields[1] != "s1" || fields[2] != tc.want {
			t.Fatalf("fields = %q, want text %q", fields, tc.want)
		}
	}
}
