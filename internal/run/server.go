package run

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"voicecmd/internal/backend"
	"voicecmd/internal/config"
	"voicecmd/internal/control"
	"voicecmd/internal/controller"
	"voicecmd/internal/recognition"
	"voicecmd/internal/relay"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

const sayTimeout = 2 * time.Second

// Server owns the controller and exposes it over the control socket, the
// metrics endpoint and, when enabled, the embedded backend.
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	startedAt time.Time

	ctrl       *controller.Controller
	capability recognition.Capability
	relay      *relay.Client
	board      *Board
	button     *controller.Button
	hub        *backend.Hub
	lines      chan string

	historyMu sync.Mutex
	history   []control.Command

	metrics metrics
	wg      sync.WaitGroup
}

// Serve runs the daemon until interrupted.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	// Write pid file.
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()

	srv, err := NewServer(cfg, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	return srv.Run(ctx)
}

// NewServer detects the recognition engine and wires the controller. A
// missing engine is not an error: the controller starts Unsupported.
func NewServer(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	rel, err := relay.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
		relay:     rel,
		board:     NewBoard(logger),
		button:    controller.NewButton(),
		hub:       backend.NewHub(logger),
		history:   make([]control.Command, 0, cfg.UI.StatusTail),
	}
	s.metrics.reset()
	if strings.EqualFold(cfg.Recognition.Engine, "text") {
		s.lines = make(chan string)
	}
	capability, err := recognition.Detect(cfg, logger, s.lines)
	if err != nil {
		logger.Warnf("recognition: %v", err)
	}
	s.capability = capability
	s.ctrl = controller.New(controller.Options{
		Capability: capability,
		Settings:   recognition.SettingsFromConfig(cfg),
		Status:     controller.Statuses{s.board, s.hub},
		Toggle:     controller.Toggles{s.button, s.hub},
		Relay:      rel,
		Recorder:   s,
		Logger:     logger,
	})
	return s, nil
}

// Controller exposes the wired controller.
func (s *Server) Controller() *controller.Controller { return s.ctrl }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	// Ensure socket removed
	if err := os.Remove(s.cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Debugf("remove stale socket: %v", err)
	}
	ln, err := net.Listen("unix", s.cfg.Paths.SocketPath)
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	s.logger.Infof("voicecmd ready: engine=%s state=%s backend=%s", s.engineName(), s.ctrl.State(), s.relay.Endpoint())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.controlLoop(ctx, ln)
	}()

	if s.cfg.Metrics.Enabled {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.metricsServe(ctx.Done(), s.cfg.Metrics.Addr, s.logger)
		}()
	}

	if s.cfg.Server.Enabled {
		api, err := backend.NewFromConfig(s.cfg, s.hub, s.logger)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("backend: %w", err)
		}
		api.Attach(ctx, s.ctrl)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := api.Start(ctx); err != nil {
				s.logger.Errorf("%v", err)
			}
		}()
	}

	<-ctx.Done()
	s.logger.Info("shutting down")
	_ = ln.Close()
	s.ctrl.Abort()
	s.ctrl.Wait()
	s.wg.Wait()
	return nil
}

// Close releases the recognition engine.
func (s *Server) Close() {
	if c, ok := s.capability.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warnf("close recognition: %v", err)
		}
	}
}

func (s *Server) engineName() string {
	if s.capability == nil {
		return "none"
	}
	return s.capability.Name()
}

func (s *Server) controlLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: false, Message: "bad request"})
		return
	}
	var resp any
	switch req.Op {
	case "status":
		resp = s.status()
	case "health":
		resp = control.SimpleResponse{OK: true, Message: "ok"}
	case "start":
		resp = s.start(ctx)
	case "say":
		resp = s.say(ctx, req.Text)
	default:
		resp = control.SimpleResponse{OK: false, Message: fmt.Sprintf("unknown op %q", req.Op)}
	}
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) status() control.Status {
	st := control.Status{
		Running:   true,
		UptimeSec: time.Since(s.startedAt).Seconds(),
		Engine:    s.engineName(),
		State:     s.ctrl.State().String(),
		Status:    s.board.Last(),
		Enabled:   s.button.Enabled(),
		Backend:   s.relay.Endpoint(),
		Commands:  s.copyHistory(),
	}
	if s.cfg.Server.Enabled {
		st.Server = s.cfg.Server.Addr
	}
	return st
}

func (s *Server) start(ctx context.Context) control.SimpleResponse {
	if err := s.ctrl.Start(ctx); err != nil {
		return control.SimpleResponse{OK: false, Message: err.Error()}
	}
	return control.SimpleResponse{OK: true, Message: controller.StatusListening}
}

// say starts a session if needed and hands text to the text engine.
func (s *Server) say(ctx context.Context, text string) control.SimpleResponse {
	if s.lines == nil {
		return control.SimpleResponse{OK: false, Message: "say needs recognition.engine = \"text\""}
	}
	if err := s.ctrl.Start(ctx); err != nil && !errors.Is(err, controller.ErrBusy) {
		return control.SimpleResponse{OK: false, Message: err.Error()}
	}
	timer := time.NewTimer(sayTimeout)
	defer timer.Stop()
	select {
	case s.lines <- text:
		return control.SimpleResponse{OK: true, Message: "delivered"}
	case <-timer.C:
		return control.SimpleResponse{OK: false, Message: "no session is reading input"}
	case <-ctx.Done():
		return control.SimpleResponse{OK: false, Message: "shutting down"}
	}
}
