package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/engine"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/state"
)

// Controller is the slice of the engine the HTTP layer drives.
type Controller interface {
	Restart() engine.Result
	Stop() engine.Result
	Send(text string) engine.Result
}

// BackupRunner is the on-demand side of the backup scheduler.
type BackupRunner interface {
	TriggerNow() (string, error)
}

// Router exposes the control API, the websocket event stream, and the
// Prometheus endpoint.
//
// Endpoints:
//
//	GET    /api/status             latest status snapshot
//	GET    /api/stats              latest resource sample
//	GET    /api/logs?limit=N       most recent log entries, chronological
//	GET    /api/state              combined status/stats/logs/backups
//	GET    /api/backups            archive list, newest first
//	POST   /api/backups            run a backup now
//	GET    /api/backups/:filename  download an archive
//	DELETE /api/backups/:filename  delete an archive (idempotent)
//	POST   /api/restart
//	POST   /api/stop
//	POST   /api/command            {"command": "..."}
//	GET    /api/config
//	PUT    /api/config             full config document, validated
//	GET    /ws                     event stream
//	GET    /metrics
type Router struct {
	ctl     Controller
	cfg     *config.Store
	bc      *state.Broadcaster
	backups BackupRunner // may be nil
}

func NewRouter(ctl Controller, cfg *config.Store, bc *state.Broadcaster, backups BackupRunner) *Router {
	return &Router{ctl: ctl, cfg: cfg, bc: bc, backups: backups}
}

// Handler returns an http.Handler that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())

	api := g.Group("/api", r.authRequired())
	api.GET("/status", r.handleStatus)
	api.GET("/stats", r.handleStats)
	api.GET("/logs", r.handleLogs)
	api.GET("/state", r.handleFullState)
	api.GET("/backups", r.handleListBackups)
	api.POST("/backups", r.handleCreateBackup)
	api.GET("/backups/:filename", r.handleDownloadBackup)
	api.DELETE("/backups/:filename", r.handleDeleteBackup)
	api.POST("/restart", r.handleRestart)
	api.POST("/stop", r.handleStop)
	api.POST("/command", r.handleCommand)
	api.GET("/config", r.handleGetConfig)
	api.PUT("/config", r.handleUpdateConfig)

	g.GET("/ws", r.authRequired(), r.handleWS)
	if metrics.Registered() {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server for the router. Call Shutdown on
// the returned server to stop it.
func NewServer(r *Router, host string, port uint16) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", "addr", srv.Addr, "error", err)
		}
	}()
	return srv
}
