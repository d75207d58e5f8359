// Package statusd serves the daemon's own observability surface: a
// liveness endpoint, a JSON status summary, and prometheus metrics.
// This is about the monitor itself; the proxy's health endpoint is a
// separate concern handled by proxyctl.
package statusd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mirrorbucket/credmon/credstore"
	"github.com/mirrorbucket/credmon/expiry"
	"github.com/mirrorbucket/credmon/supervisor"
)

// StateSource exposes the supervisor's current state.
type StateSource interface {
	State() supervisor.Snapshot
}

// Server is the daemon status HTTP server.
type Server struct {
	addr      string
	profile   string
	cacheDir  string
	threshold time.Duration
	state     StateSource
}

// New creates a status server.
func New(addr, profile, cacheDir string, threshold time.Duration, state StateSource) *Server {
	return &Server{addr: addr, profile: profile, cacheDir: cacheDir, threshold: threshold, state: state}
}

// Handler builds the HTTP handler serving the status routes.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealthz)
	router.GET("/status", s.handleStatus)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("Status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("Status server stopped")
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// handleStatus reports the current token assessment and the last
// renewal attempt.
func (s *Server) handleStatus(c *gin.Context) {
	now := time.Now()
	tokens := credstore.ReadTokens(s.cacheDir)
	assessment := expiry.Evaluate(tokens, now, s.threshold)
	snap := s.state.State()

	status := gin.H{
		"profile": s.profile,
		"tokens": gin.H{
			"total":   len(tokens),
			"valid":   assessment.Valid,
			"urgent":  assessment.Urgent,
			"expired": assessment.Expired,
			"unknown": assessment.Unknown,
		},
		"needs_renewal": assessment.NeedsImmediateRenewal,
	}
	if assessment.Bounded {
		status["earliest_expiry_seconds"] = int64(assessment.EarliestExpiry.Seconds())
	}
	if !snap.LastAttempt.IsZero() {
		status["last_renewal"] = gin.H{
			"at":      snap.LastAttempt.Format(time.RFC3339),
			"reason":  string(snap.LastReason),
			"outcome": snap.LastOutcome,
		}
	}
	status["renewal_executions"] = snap.Executions

	c.JSON(http.StatusOK, status)
}
