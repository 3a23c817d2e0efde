package run

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

type metrics struct {
	sessions          atomic.Int64
	commands          atomic.Int64
	relayOK           atomic.Int64
	relayFailed       atomic.Int64
	recognitionErrors atomic.Int64
}

func (m *metrics) reset() {
	m.sessions.Store(0)
	m.commands.Store(0)
	m.relayOK.Store(0)
	m.relayFailed.Store(0)
	m.recognitionErrors.Store(0)
}

func (m *metrics) incSessions()          { m.sessions.Add(1) }
func (m *metrics) incCommands()          { m.commands.Add(1) }
func (m *metrics) incRelayOK()           { m.relayOK.Add(1) }
func (m *metrics) incRelayFailed()       { m.relayFailed.Add(1) }
func (m *metrics) incRecognitionErrors() { m.recognitionErrors.Add(1) }

func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "voicecmd_sessions_total %d\n", s.metrics.sessions.Load())
		fmt.Fprintf(w, "voicecmd_commands_total %d\n", s.metrics.commands.Load())
		fmt.Fprintf(w, "voicecmd_relay_ok_total %d\n", s.metrics.relayOK.Load())
		fmt.Fprintf(w, "voicecmd_relay_failed_total %d\n", s.metrics.relayFailed.Load())
		fmt.Fprintf(w, "voicecmd_recognition_errors_total %d\n", s.metrics.recognitionErrors.Load())
		fmt.Fprintf(w, "voicecmd_uptime_seconds %.0f\n", time.Since(s.startedAt).Seconds())
	})
	return mux
}

func (s *Server) metricsServe(ctxDone <-chan struct{}, addr string, logger interface {
	Infof(string, ...any)
	Warnf(string, ...any)
}) {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.metricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctxDone
		_ = server.Close()
	}()
	logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warnf("metrics server: %v", err)
	}
}
