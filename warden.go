// Package warden supervises a single game-server process: it keeps the
// process alive under a configurable restart policy, classifies its output,
// samples its resource usage, runs backup and log-cleanup schedules, and
// serves a control API with a live event stream.
package warden

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/warden/internal/backup"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/engine"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/logclean"
	"github.com/loykin/warden/internal/logger"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/notify"
	"github.com/loykin/warden/internal/server"
	"github.com/loykin/warden/internal/state"
	"github.com/loykin/warden/internal/stats"
)

// Re-export the types embedders need.

type Config = config.Config

type Result = engine.Result

// Watcher is one supervised server and everything around it. Its lifetime is
// owned by the caller: construct, Start, and Close it explicitly.
type Watcher struct {
	store    *config.Store
	bc       *state.Broadcaster
	notifier *notify.Telegram
	sink     history.Sink
	backups  *backup.Scheduler
	eng      *engine.Engine
	monitor  *stats.Monitor
	cleaner  *logclean.Cleaner
	httpSrv  *http.Server
}

// New loads (or creates) the config at path and wires the full supervisor.
// Nothing runs until Start.
func New(path string) (*Watcher, error) {
	cfg, err := config.LoadOrCreate(path)
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg.Log)
	store := config.NewStore(path, cfg)

	bc := state.NewBroadcaster()
	notifier := notify.NewTelegram(store, bc)

	var sink history.Sink
	if cfg.History.Enabled {
		s, err := history.NewFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("open history sink: %w", err)
		}
		sink = s
	}

	backups := backup.NewScheduler(store, bc, notifier, sink)
	eng := engine.New(store, bc, notifier, sink, backups)

	return &Watcher{
		store:    store,
		bc:       bc,
		notifier: notifier,
		sink:     sink,
		backups:  backups,
		eng:      eng,
		monitor:  stats.NewMonitor(store, bc, notifier, eng.PID),
		cleaner:  logclean.NewCleaner(store, bc),
	}, nil
}

// Start launches the schedulers, the engine (which starts the server
// process), and, when enabled, the HTTP API.
func (w *Watcher) Start() error {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	w.backups.Start()
	w.cleaner.Start()
	w.monitor.Start()
	w.eng.Start()

	if web := w.store.Current().Web; web.Enabled {
		router := server.NewRouter(w.eng, w.store, w.bc, w.backups)
		w.httpSrv = server.NewServer(router, web.Host, web.Port)
	}
	return nil
}

// Close stops the API, the schedulers, and the supervised process, in that
// order, then flushes pending notifications.
func (w *Watcher) Close() error {
	if w.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = w.httpSrv.Shutdown(ctx)
		cancel()
	}
	w.monitor.Close()
	w.cleaner.Close()
	w.backups.Close()
	w.eng.Close()
	w.notifier.Flush()
	w.bc.Close()
	if w.sink != nil {
		return w.sink.Close()
	}
	return nil
}

// Restart issues a restart command to the engine.
func (w *Watcher) Restart() Result { return w.eng.Restart() }

// Stop stops the supervised process; the watcher itself keeps running.
func (w *Watcher) Stop() Result { return w.eng.Stop() }

// Send writes one line to the supervised process's stdin.
func (w *Watcher) Send(text string) Result { return w.eng.Send(text) }

// Subscribe attaches an observer to the event stream.
func (w *Watcher) Subscribe() *state.Subscription { return w.bc.Subscribe() }

// Config returns the live configuration.
func (w *Watcher) Config() *Config { return w.store.Current() }
