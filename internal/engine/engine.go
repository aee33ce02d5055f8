package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/warden/internal/backup"
	"github.com/loykin/warden/internal/classify"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/notify"
	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/internal/state"
)

// Result is the outcome of a control command.
type Result struct {
	OK      bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type cmdKind int

const (
	cmdRestart cmdKind = iota
	cmdStop
	cmdSend
	cmdShutdown
)

type command struct {
	kind  cmdKind
	text  string
	reply chan Result
}

type evKind int

const (
	evSpawned evKind = iota
	evLine
	evExit
	evRespawn
)

type event struct {
	kind  evKind
	child *process.Child
	err   error
	line  process.OutputLine
	exit  process.ExitStatus
}

// Engine owns the process lifecycle. All state lives on the run goroutine;
// commands and worker completions arrive as messages, and blocking work
// (spawn, graceful stop, restart delay) happens on short-lived workers that
// report back the same way. The run goroutine itself never blocks on I/O.
type Engine struct {
	cfg      *config.Store
	bc       *state.Broadcaster
	notifier notify.Dispatcher
	sink     history.Sink      // may be nil
	backups  *backup.Scheduler // may be nil

	cmds   chan command
	events chan event
	pid    atomic.Int32

	// Interval between scheduled automatic restarts. Tests shrink it.
	autoRestartEvery time.Duration

	// Owned by the run goroutine.
	status         string
	child          *process.Child
	startedAt      time.Time
	restartCount   uint32
	restartsUsed   uint
	autoRestartAt  time.Time
	pendingRestart bool

	stopOnce sync.Once
	done     chan struct{}
}

func New(cfg *config.Store, bc *state.Broadcaster, notifier notify.Dispatcher, sink history.Sink, backups *backup.Scheduler) *Engine {
	return &Engine{
		cfg:              cfg,
		bc:               bc,
		notifier:         notifier,
		sink:             sink,
		backups:          backups,
		cmds:             make(chan command),
		events:           make(chan event, 256),
		status:           state.StatusStopped,
		autoRestartEvery: time.Hour,
		done:             make(chan struct{}),
	}
}

// Start launches the run goroutine and issues the initial server start.
func (e *Engine) Start() {
	go e.run()
}

// PID reports the supervised process id, 0 when none is live.
func (e *Engine) PID() int32 { return e.pid.Load() }

// Restart brings the server up from stopped or error, or cycles a live one.
// It is honored regardless of the restart cap.
func (e *Engine) Restart() Result { return e.submit(command{kind: cmdRestart}) }

// Stop gracefully stops the server. The engine stays stopped until an
// explicit restart.
func (e *Engine) Stop() Result { return e.submit(command{kind: cmdStop}) }

// Send writes one line to the server's stdin.
func (e *Engine) Send(text string) Result {
	return e.submit(command{kind: cmdSend, text: text})
}

// Close stops the child if one is live and shuts the run goroutine down.
func (e *Engine) Close() {
	e.stopOnce.Do(func() {
		e.submit(command{kind: cmdShutdown})
	})
	<-e.done
}

func (e *Engine) submit(cmd command) Result {
	cmd.reply = make(chan Result, 1)
	select {
	case e.cmds <- cmd:
		return <-cmd.reply
	case <-e.done:
		return Result{OK: false, Message: "engine stopped"}
	}
}

func (e *Engine) run() {
	defer close(e.done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	e.beginStart()

	for {
		select {
		case cmd := <-e.cmds:
			if cmd.kind == cmdShutdown {
				e.shutdown()
				cmd.reply <- Result{OK: true}
				return
			}
			cmd.reply <- e.handleCommand(cmd)
		case ev := <-e.events:
			e.handleEvent(ev)
		case <-ticker.C:
			e.handleTick()
		}
	}
}

func (e *Engine) handleCommand(cmd command) Result {
	switch cmd.kind {
	case cmdRestart:
		return e.handleRestart()
	case cmdStop:
		return e.handleStop()
	case cmdSend:
		return e.handleSend(cmd.text)
	}
	return Result{OK: false, Message: "unknown command"}
}

func (e *Engine) handleRestart() Result {
	switch e.status {
	case state.StatusRunning:
		e.beginRestart("Restart requested", false)
		return Result{OK: true, Message: "Server is restarting"}
	case state.StatusStopped, state.StatusError:
		e.beginStart()
		return Result{OK: true, Message: "Server is starting"}
	case state.StatusRestarting:
		// Coalesced: one restart in flight at a time.
		return Result{OK: true, Message: "Restart already in progress"}
	case state.StatusStarting:
		return Result{OK: false, Message: "Server is already starting"}
	default:
		return Result{OK: false, Message: "Server is stopping"}
	}
}

func (e *Engine) handleStop() Result {
	if e.status != state.StatusRunning {
		return Result{OK: false, Message: "Server is not running"}
	}
	e.setStatus(state.StatusStopping)
	e.stopAsync(e.child)
	return Result{OK: true, Message: "Server is stopping"}
}

func (e *Engine) handleSend(text string) Result {
	if e.status != state.StatusRunning || e.child == nil {
		return Result{OK: false, Message: "Server is not running"}
	}
	if err := e.child.WriteLine(text); err != nil {
		return Result{OK: false, Message: fmt.Sprintf("Failed to send command: %v", err)}
	}
	return Result{OK: true, Message: "Command sent"}
}

func (e *Engine) handleEvent(ev event) {
	switch ev.kind {
	case evSpawned:
		e.onSpawned(ev)
	case evLine:
		e.onLine(ev)
	case evExit:
		e.onExit(ev)
	case evRespawn:
		e.setStatus(state.StatusStarting)
		e.spawnAsync()
	}
}

// beginStart moves into starting and spawns off-loop. Callers are responsible
// for only invoking it from stopped or error.
func (e *Engine) beginStart() {
	e.setStatus(state.StatusStarting)
	e.spawnAsync()
}

func (e *Engine) spawnAsync() {
	cfg := e.cfg.Current().Server
	go func() {
		c, err := process.Start(cfg)
		e.events <- event{kind: evSpawned, child: c, err: err}
	}()
}

func (e *Engine) onSpawned(ev event) {
	e.pendingRestart = false
	if ev.err != nil {
		msg := fmt.Sprintf("Failed to start server: %v", ev.err)
		e.bc.Log(classify.SeverityCritical, state.SourceWatcher, msg)
		e.notifier.Notify(notify.KindError, msg)
		e.record(history.EventError, msg)
		e.setStatus(state.StatusError)
		return
	}

	e.child = ev.child
	e.pid.Store(int32(ev.child.PID()))
	e.startedAt = time.Now()
	e.scheduleAutoRestart()
	e.setStatus(state.StatusRunning)

	metrics.IncStart()
	e.bc.WatcherLog(fmt.Sprintf("Server started (pid %d)", ev.child.PID()))
	e.notifier.Notify(notify.KindStart, "Server started")
	e.record(history.EventStart, "")

	go e.pump(ev.child)
}

// pump forwards child output and the final exit status into the event loop.
func (e *Engine) pump(c *process.Child) {
	for ln := range c.Lines() {
		e.events <- event{kind: evLine, child: c, line: ln}
	}
	e.events <- event{kind: evExit, child: c, exit: c.Status()}
}

func (e *Engine) onLine(ev event) {
	if ev.child != e.child {
		return
	}

	cfg := e.cfg.Current()
	patterns := classify.Patterns{
		Critical: cfg.ErrorPatterns.Critical,
		Errors:   cfg.ErrorPatterns.Errors,
		Warnings: cfg.ErrorPatterns.Warnings,
	}
	sev := patterns.Classify(ev.line.Text)

	source := state.SourceServer
	if ev.line.Source == process.SourceStderr {
		source = state.SourceStderr
	}
	e.bc.Log(sev, source, ev.line.Text)
	metrics.IncLogLine(sev.String())

	if sev == classify.SeverityCritical {
		e.notifier.Notify(notify.KindCritical, ev.line.Text)
	}

	if trigger, reason := restartTrigger(sev, cfg.RestartOn, ev.line.Text); trigger {
		e.policyRestart(reason)
	}
}

// restartTrigger maps a classified line onto the restart_on flags.
func restartTrigger(sev classify.Severity, on config.RestartConfig, line string) (bool, string) {
	switch {
	case sev == classify.SeverityCritical && on.Critical:
		return true, fmt.Sprintf("Critical error detected: %s", line)
	case sev == classify.SeverityError && on.Errors:
		return true, fmt.Sprintf("Error detected: %s", line)
	case sev == classify.SeverityWarning && on.Warnings:
		return true, fmt.Sprintf("Warning detected: %s", line)
	}
	return false, ""
}

func (e *Engine) onExit(ev event) {
	if ev.child != e.child {
		return
	}
	e.child = nil
	e.pid.Store(0)
	e.autoRestartAt = time.Time{}

	switch e.status {
	case state.StatusStopping:
		e.finishStop(ev.exit)
	case state.StatusRunning:
		code := ev.exit.Code
		if e.cfg.Current().RestartOn.ProcessExit {
			e.policyRestart(fmt.Sprintf("Server process exited unexpectedly (code %d)", code))
			return
		}
		// Exit policy disabled: note it and stay down without raising an error.
		e.bc.WatcherLog(fmt.Sprintf("Server exited (code %d)", code))
		e.setStatus(state.StatusStopped)
	default:
		// Late exit while starting or in error; the status already reflects
		// where the engine is headed, so only note it.
		slog.Debug("exit in unexpected state", "status", e.status, "code", ev.exit.Code)
	}
}

func (e *Engine) finishStop(exit process.ExitStatus) {
	metrics.IncStop()
	e.bc.WatcherLog(fmt.Sprintf("Server stopped (code %d)", exit.Code))
	e.notifier.Notify(notify.KindStop, "Server stopped")
	e.record(history.EventStop, "")
	e.setStatus(state.StatusStopped)
}

// policyRestart applies the restart cap and either begins a restart cycle or
// locks the engine into error until a manual restart.
func (e *Engine) policyRestart(reason string) {
	if e.status != state.StatusRunning || e.pendingRestart {
		return
	}

	if limit := e.cfg.Current().Server.MaxRestarts; limit != nil && e.restartsUsed >= *limit {
		msg := fmt.Sprintf("Restart limit reached (%d); manual restart required. Last trigger: %s", *limit, reason)
		e.bc.Log(classify.SeverityCritical, state.SourceWatcher, msg)
		e.notifier.Notify(notify.KindCritical, msg)
		e.record(history.EventError, msg)
		e.setStatus(state.StatusError)
		if c := e.child; c != nil {
			e.child = nil
			e.pid.Store(0)
			go c.Stop(e.grace())
		}
		return
	}

	e.restartsUsed++
	e.beginRestart(reason, true)
}

// beginRestart runs the stop-warn-delay-spawn cycle of a live server.
func (e *Engine) beginRestart(reason string, policy bool) {
	e.pendingRestart = true
	e.restartCount++
	metrics.IncRestart()
	e.setStatus(state.StatusRestarting)

	e.bc.WatcherLog(fmt.Sprintf("Restarting server: %s", reason))
	e.notifier.Notify(notify.KindRestart, reason)
	e.record(history.EventRestart, reason)
	if policy {
		slog.Info("policy restart", "reason", reason, "used", e.restartsUsed)
	}

	cfg := e.cfg.Current().Server
	child := e.child
	grace := e.grace()
	// Detach the old child now so a late exit from it is dropped as stale
	// instead of being taken for the new child going down.
	e.child = nil
	e.pid.Store(0)
	go func() {
		if child != nil {
			if cfg.RestartWarningMessage != "" {
				_ = child.WriteLine(cfg.RestartWarningMessage)
			}
			child.Stop(grace)
		}
		if cfg.RestartDelaySeconds > 0 {
			time.Sleep(time.Duration(cfg.RestartDelaySeconds) * time.Second)
		}
		e.events <- event{kind: evRespawn}
	}()
}

func (e *Engine) stopAsync(child *process.Child) {
	grace := e.grace()
	go func() {
		if child != nil {
			child.Stop(grace)
		}
	}()
}

func (e *Engine) handleTick() {
	cfg := e.cfg.Current().Server
	if e.status == state.StatusRunning {
		switch {
		case !cfg.AutoRestartHourly:
			e.autoRestartAt = time.Time{}
		case e.autoRestartAt.IsZero():
			e.autoRestartAt = time.Now().Add(e.autoRestartEvery)
		case !time.Now().Before(e.autoRestartAt):
			e.policyRestart("Scheduled hourly restart")
		}
	}
	e.publishStatus()
}

func (e *Engine) scheduleAutoRestart() {
	if e.cfg.Current().Server.AutoRestartHourly {
		e.autoRestartAt = time.Now().Add(e.autoRestartEvery)
	} else {
		e.autoRestartAt = time.Time{}
	}
}

func (e *Engine) setStatus(status string) {
	e.status = status
	metrics.SetState(status)
	e.publishStatus()
}

func (e *Engine) publishStatus() {
	ev := state.StatusEvent{Status: e.status, RestartCount: e.restartCount}
	if e.child != nil {
		ev.PID = e.child.PID()
	}
	if e.status == state.StatusRunning {
		ev.UptimeSecs = uint64(time.Since(e.startedAt).Seconds())
		if !e.autoRestartAt.IsZero() {
			remaining := time.Until(e.autoRestartAt)
			if remaining < 0 {
				remaining = 0
			}
			secs := uint64(remaining.Seconds())
			ev.AutoRestartRemainingSecs = &secs
		}
	}
	if e.backups != nil {
		if next, ok := e.backups.NextRun(); ok {
			remaining := time.Until(next)
			if remaining < 0 {
				remaining = 0
			}
			secs := uint64(remaining.Seconds())
			ev.NextBackupSecs = &secs
		}
	}
	e.bc.PublishStatus(ev)
}

func (e *Engine) grace() time.Duration {
	secs := e.cfg.Current().Server.StopTimeoutSeconds
	if secs == 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

func (e *Engine) shutdown() {
	child := e.child
	e.child = nil
	e.pid.Store(0)
	if child == nil {
		e.setStatus(state.StatusStopped)
		return
	}

	stopped := make(chan struct{})
	go func() {
		child.Stop(e.grace())
		close(stopped)
	}()
	// Keep draining so the output pump can finish while the stop runs.
	for {
		select {
		case <-stopped:
			e.setStatus(state.StatusStopped)
			return
		case <-e.events:
		}
	}
}

func (e *Engine) record(eventType, detail string) {
	if e.sink == nil {
		return
	}
	ev := history.Event{Type: eventType, OccurredAt: time.Now().UTC(), Status: e.status, Detail: detail}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.sink.Record(ctx, ev); err != nil {
			slog.Warn("history record failed", "type", eventType, "error", err)
		}
	}()
}
