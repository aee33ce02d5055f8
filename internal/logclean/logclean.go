package logclean

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/warden/internal/classify"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/state"
)

const disabledRecheck = time.Minute

// Cleaner periodically deletes aged files from the configured log folder.
// Only regular files directly inside the folder are considered.
type Cleaner struct {
	cfg *config.Store
	bc  *state.Broadcaster

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewCleaner(cfg *config.Store, bc *state.Broadcaster) *Cleaner {
	return &Cleaner{cfg: cfg, bc: bc, stop: make(chan struct{})}
}

func (c *Cleaner) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			cfg := c.cfg.Current().LogCleanup
			wait := disabledRecheck
			if cfg.Enabled {
				wait = time.Duration(cfg.CheckIntervalHours) * time.Hour
			}
			select {
			case <-c.stop:
				return
			case <-time.After(wait):
				if cfg.Enabled {
					c.sweep(cfg, time.Now())
				}
			}
		}
	}()
}

func (c *Cleaner) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

func (c *Cleaner) sweep(cfg config.LogCleanupConfig, now time.Time) {
	removed, err := Sweep(cfg.LogFolder, time.Duration(cfg.RetentionHours)*time.Hour, now)
	if err != nil {
		c.bc.Log(classify.SeverityWarning, state.SourceWatcher, fmt.Sprintf("Log cleanup: %v", err))
		return
	}
	if removed > 0 {
		c.bc.WatcherLog(fmt.Sprintf("Log cleanup removed %d file(s)", removed))
		slog.Info("log cleanup", "folder", cfg.LogFolder, "removed", removed)
	}
}

// Sweep deletes regular files in dir whose modification time is older than
// retention. A missing folder removes nothing and is not an error.
func Sweep(dir string, retention time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-retention)
	removed := 0
	var firstErr error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if !fi.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
