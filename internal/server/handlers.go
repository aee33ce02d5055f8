package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/loykin/warden/internal/backup"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/engine"
	"github.com/loykin/warden/internal/state"
)

func fail(c *gin.Context, code int, message string) {
	c.JSON(code, engine.Result{OK: false, Message: message})
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.bc.Status())
}

func (r *Router) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, r.bc.Stats())
}

func (r *Router) handleLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, r.bc.Logs(limit))
}

type fullState struct {
	Status  state.StatusEvent `json:"status"`
	Stats   state.StatsEvent  `json:"stats"`
	Logs    []state.LogEvent  `json:"logs"`
	Backups []backup.Info     `json:"backups"`
}

func (r *Router) handleFullState(c *gin.Context) {
	status, stats, logs := r.bc.Snapshot()
	backups, err := backup.List(r.cfg.Current().Backup.BackupFolder)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, fullState{Status: status, Stats: stats, Logs: logs, Backups: backups})
}

func (r *Router) handleListBackups(c *gin.Context) {
	infos, err := backup.List(r.cfg.Current().Backup.BackupFolder)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, infos)
}

func (r *Router) handleCreateBackup(c *gin.Context) {
	if r.backups == nil {
		fail(c, http.StatusServiceUnavailable, "Backups are not configured")
		return
	}
	path, err := r.backups.TriggerNow()
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, engine.Result{OK: true, Message: "Backup created: " + path})
}

func (r *Router) handleDownloadBackup(c *gin.Context) {
	name := c.Param("filename")
	path, err := backup.Resolve(r.cfg.Current().Backup.BackupFolder, name)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fail(c, http.StatusNotFound, "Backup not found")
		return
	}
	c.FileAttachment(path, name)
}

func (r *Router) handleDeleteBackup(c *gin.Context) {
	name := c.Param("filename")
	if err := backup.Delete(r.cfg.Current().Backup.BackupFolder, name); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, backup.ErrInvalidName) {
			code = http.StatusBadRequest
		}
		fail(c, code, err.Error())
		return
	}
	// Deleting an absent archive is a success: the caller's goal is met.
	c.JSON(http.StatusOK, engine.Result{OK: true, Message: "Backup deleted"})
}

func (r *Router) handleRestart(c *gin.Context) {
	c.JSON(http.StatusOK, r.ctl.Restart())
}

func (r *Router) handleStop(c *gin.Context) {
	c.JSON(http.StatusOK, r.ctl.Stop())
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

func (r *Router) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "command is required")
		return
	}
	c.JSON(http.StatusOK, r.ctl.Send(req.Command))
}

func (r *Router) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, r.cfg.Current())
}

func (r *Router) handleUpdateConfig(c *gin.Context) {
	var next config.Config
	if err := c.ShouldBindJSON(&next); err != nil {
		fail(c, http.StatusBadRequest, "invalid config document: "+err.Error())
		return
	}
	if err := r.cfg.Update(next); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, engine.Result{OK: true, Message: "Configuration updated"})
}
