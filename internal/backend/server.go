// Package backend receives voice commands over HTTP and turns them into
// player actions.
package backend

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"voicecmd/internal/config"
	"voicecmd/internal/controller"
	"voicecmd/internal/hook"
	"voicecmd/internal/player"
	"voicecmd/internal/relay"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

//go:embed web/index.html
var indexHTML []byte

// Activator starts a listening session on request, usually a controller.
type Activator interface {
	Start(ctx context.Context) error
	State() controller.State
}

// Options wires a Server.
type Options struct {
	Addr         string
	AllowOrigins []string
	Actions      []config.ActionConfig
	Player       player.Player
	Hub          *Hub
	Logger       *logrus.Logger
}

// Server is the echo application behind /voice_control.
type Server struct {
	e       *echo.Echo
	actions []config.ActionConfig
	player  player.Player
	hub     *Hub
	logger  *logrus.Logger
	addr    string

	mu        sync.Mutex
	activator Activator
	baseCtx   context.Context
}

var (
	promOnce sync.Once
	promMdlw *prometheus.Prometheus
)

func metricsMiddleware() *prometheus.Prometheus {
	promOnce.Do(func() {
		promMdlw = prometheus.NewPrometheus("voicecmd", nil)
	})
	return promMdlw
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if len(opts.Actions) == 0 {
		opts.Actions = config.DefaultActions()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Logger)
	}
	if len(opts.AllowOrigins) == 0 {
		opts.AllowOrigins = []string{"*"}
	}
	s := &Server{
		actions: opts.Actions,
		player:  opts.Player,
		hub:     opts.Hub,
		logger:  opts.Logger,
		addr:    opts.Addr,
		baseCtx: context.Background(),
	}
	s.e = s.initRoutes(opts.AllowOrigins)
	return s
}

// NewFromConfig builds the server with the configured player.
func NewFromConfig(cfg *config.Config, hub *Hub, logger *logrus.Logger) (*Server, error) {
	p, err := player.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(Options{
		Addr:         cfg.Server.Addr,
		AllowOrigins: cfg.Server.AllowOrigins,
		Actions:      cfg.Actions,
		Player:       p,
		Hub:          hub,
		Logger:       logger,
	}), nil
}

func (s *Server) initRoutes(origins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.Round(time.Millisecond),
			}).Debug("request")
			return nil
		},
	}))
	metricsMiddleware().Use(e)

	e.GET("/", index)
	e.GET("/live", live)
	e.POST(config.DefaultBackendPath, s.voiceControl)
	e.OPTIONS(config.DefaultBackendPath, preflight)
	e.GET("/api/state", s.state)
	e.POST("/api/listen", s.listen)
	e.GET("/ws/status", s.hub.Subscribe)

	for _, r := range e.Routes() {
		s.logger.Debugf("route %s %s", r.Method, r.Path)
	}
	return e
}

// Attach sets the activator used by /api/listen. ctx outlives each request
// and is handed to the sessions it starts.
func (s *Server) Attach(ctx context.Context, a Activator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activator = a
	if ctx != nil {
		s.baseCtx = ctx
	}
}

// Hub returns the status fan-out.
func (s *Server) Hub() *Hub { return s.hub }

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.e.Server.ReadHeaderTimeout = 5 * time.Second
	s.e.Server.ReadTimeout = 10 * time.Second
	s.e.Server.WriteTimeout = 30 * time.Second

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("backend listening on %s", s.addr)
		errCh <- s.e.Start(s.addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("backend: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("backend shutdown: %w", err)
	}
	return nil
}

// MatchAction returns the action of the first entry whose keyword occurs in
// command. Matching is case-insensitive.
func MatchAction(actions []config.ActionConfig, command string) (string, bool) {
	lower := strings.ToLower(command)
	for _, a := range actions {
		for _, kw := range a.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(lower, kw) {
				return a.Action, true
			}
		}
	}
	return "", false
}

// index serves the browser page: a speak button posting /api/listen and a
// status line fed by /ws/status.
func index(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, indexHTML)
}

func live(c echo.Context) error {
	return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
}

func preflight(c echo.Context) error {
	return c.JSON(http.StatusOK, relay.ServerResponse{Status: "ok"})
}

func errorReply(c echo.Context, code int, msg string) error {
	return c.JSON(code, relay.ServerResponse{Status: "error", Message: msg})
}

func (s *Server) voiceControl(c echo.Context) error {
	var req relay.CommandRequest
	if err := c.Echo().JSONSerializer.Deserialize(c, &req); err != nil {
		return errorReply(c, http.StatusBadRequest, "invalid request body")
	}
	command := strings.ToLower(strings.TrimSpace(req.Command))
	s.logger.Infof("received command: %q", command)
	if command == "" {
		return errorReply(c, http.StatusBadRequest, "empty command")
	}
	action, ok := MatchAction(s.actions, command)
	if !ok {
		return errorReply(c, http.StatusBadRequest, fmt.Sprintf("unknown command: %s", command))
	}
	if s.player == nil {
		return errorReply(c, http.StatusServiceUnavailable, "no player configured")
	}

	ctx := player.WithCommand(c.Request().Context(), command)
	reply, err := s.player.Do(ctx, action)
	if err != nil {
		var se *player.StatusError
		switch {
		case errors.As(err, &se):
			s.logger.Warnf("player %s: status %d: %s", action, se.StatusCode, se.Body)
			return errorReply(c, se.StatusCode, fmt.Sprintf("Spotify API error: %d", se.StatusCode))
		case errors.Is(err, hook.ErrCooldown):
			return errorReply(c, http.StatusTooManyRequests, err.Error())
		default:
			s.logger.Errorf("player %s: %v", action, err)
			return errorReply(c, http.StatusBadGateway, fmt.Sprintf("Player error: %v", err))
		}
	}
	return c.JSON(http.StatusOK, relay.ServerResponse{Message: reply})
}

type stateResponse struct {
	State   string `json:"state"`
	Status  string `json:"status"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) state(c echo.Context) error {
	snap := s.hub.Snapshot()
	out := stateResponse{State: "detached", Status: snap.Status, Enabled: snap.Enabled}
	s.mu.Lock()
	a := s.activator
	s.mu.Unlock()
	if a != nil {
		out.State = a.State().String()
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listen(c echo.Context) error {
	s.mu.Lock()
	a, ctx := s.activator, s.baseCtx
	s.mu.Unlock()
	if a == nil {
		return errorReply(c, http.StatusServiceUnavailable, "no recognizer attached")
	}
	err := a.Start(ctx)
	switch {
	case err == nil:
		return c.JSON(http.StatusAccepted, relay.ServerResponse{Status: "ok", Message: controller.StatusListening})
	case errors.Is(err, controller.ErrBusy):
		return errorReply(c, http.StatusConflict, err.Error())
	case errors.Is(err, controller.ErrUnsupported):
		return errorReply(c, http.StatusServiceUnavailable, err.Error())
	default:
		return errorReply(c, http.StatusInternalServerError, err.Error())
	}
}
