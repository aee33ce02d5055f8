//go:build !windows

package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/warden/internal/classify"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/notify"
	"github.com/loykin/warden/internal/state"
)

func newTestEngine(t *testing.T, mutate func(*config.Config)) (*Engine, *state.Broadcaster) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Executable = "/bin/sh"
	cfg.Server.RestartDelaySeconds = 0
	cfg.Server.StopTimeoutSeconds = 2
	cfg.RestartOn = config.RestartConfig{}
	if mutate != nil {
		mutate(&cfg)
	}
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"), cfg)

	bc := state.NewBroadcaster()
	t.Cleanup(bc.Close)
	e := New(store, bc, notify.Noop{}, nil, nil)
	t.Cleanup(e.Close)
	return e, bc
}

// markerScript prints FATAL only on its first run so a restarted server
// comes back healthy.
func markerScript(t *testing.T) []string {
	t.Helper()
	marker := filepath.Join(t.TempDir(), "ran")
	script := fmt.Sprintf(
		"if [ ! -f %s ]; then touch %s; echo 'FATAL error'; fi; sleep 60", marker, marker)
	return []string{"-c", script}
}

func waitStatus(t *testing.T, sub *state.Subscription, want string) state.StatusEvent {
	t.Helper()
	deadline := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				t.Fatalf("subscription closed waiting for %q", want)
			}
			if ev.Type != state.EventStatus {
				continue
			}
			se := ev.Data.(state.StatusEvent)
			if se.Status == want {
				return se
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func waitLogContaining(t *testing.T, sub *state.Subscription, fragment string) state.LogEvent {
	t.Helper()
	deadline := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				t.Fatalf("subscription closed waiting for log %q", fragment)
			}
			if ev.Type != state.EventLog {
				continue
			}
			le := ev.Data.(state.LogEvent)
			if strings.Contains(le.Message, fragment) {
				return le
			}
		case <-deadline:
			t.Fatalf("timed out waiting for log %q", fragment)
		}
	}
}

func TestStartRunStopLifecycle(t *testing.T) {
	e, bc := newTestEngine(t, func(c *config.Config) {
		c.Server.Arguments = []string{"-c", "sleep 60"}
	})
	sub := bc.Subscribe()
	defer sub.Close()

	e.Start()
	running := waitStatus(t, sub, state.StatusRunning)
	if running.PID == 0 {
		t.Fatal("running status has no pid")
	}
	if e.PID() == 0 {
		t.Fatal("engine pid not exposed")
	}

	if res := e.Stop(); !res.OK {
		t.Fatalf("stop: %+v", res)
	}
	waitStatus(t, sub, state.StatusStopping)
	stopped := waitStatus(t, sub, state.StatusStopped)
	if stopped.PID != 0 {
		t.Fatalf("stopped status still has pid %d", stopped.PID)
	}

	if res := e.Stop(); res.OK {
		t.Fatal("stop of a stopped server succeeded")
	}
	if res := e.Send("list"); res.OK {
		t.Fatal("send to a stopped server succeeded")
	}
}

func TestSpawnFailureEntersError(t *testing.T) {
	e, bc := newTestEngine(t, func(c *config.Config) {
		c.Server.Executable = "/nonexistent/server"
	})
	sub := bc.Subscribe()
	defer sub.Close()

	e.Start()
	waitStatus(t, sub, state.StatusError)
	le := waitLogContaining(t, sub, "Failed to start server")
	if le.Level != classify.SeverityCritical.String() || le.Source != state.SourceWatcher {
		t.Fatalf("log = %+v", le)
	}
}

func TestCriticalLineTriggersRestartCycle(t *testing.T) {
	e, bc := newTestEngine(t, func(c *config.Config) {
		c.Server.Arguments = markerScript(t)
		c.RestartOn.Critical = true
	})
	sub := bc.Subscribe()
	defer sub.Close()

	e.Start()
	waitStatus(t, sub, state.StatusRunning)

	le := waitLogContaining(t, sub, "FATAL error")
	if le.Level != classify.SeverityCritical.String() || le.Source != state.SourceServer {
		t.Fatalf("log = %+v", le)
	}

	waitStatus(t, sub, state.StatusRestarting)
	waitStatus(t, sub, state.StatusStarting)
	recovered := waitStatus(t, sub, state.StatusRunning)
	if recovered.RestartCount != 1 {
		t.Fatalf("restart count = %d, want 1", recovered.RestartCount)
	}
}

func TestRestartCapExhaustionEntersError(t *testing.T) {
	zero := uint(0)
	e, bc := newTestEngine(t, func(c *config.Config) {
		c.Server.Arguments = markerScript(t)
		c.Server.MaxRestarts = &zero
		c.RestartOn.Critical = true
	})
	sub := bc.Subscribe()
	defer sub.Close()

	e.Start()
	waitStatus(t, sub, state.StatusRunning)
	waitStatus(t, sub, state.StatusError)
	le := waitLogContaining(t, sub, "Restart limit reached")
	if le.Level != classify.SeverityCritical.String() {
		t.Fatalf("log = %+v", le)
	}

	// Error is terminal for policy triggers; a manual restart recovers.
	if res := e.Restart(); !res.OK {
		t.Fatalf("manual restart: %+v", res)
	}
	recovered := waitStatus(t, sub, state.StatusRunning)
	if recovered.RestartCount != 0 {
		t.Fatalf("manual start from error counted as restart: %d", recovered.RestartCount)
	}
}

func TestUnexpectedExitRestartsWhenEnabled(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "ran")
	script := fmt.Sprintf("if [ ! -f %s ]; then touch %s; exit 1; fi; sleep 60", marker, marker)
	e, bc := newTestEngine(t, func(c *config.Config) {
		c.Server.Arguments = []string{"-c", script}
		c.RestartOn.ProcessExit = true
	})
	sub := bc.Subscribe()
	defer sub.Close()

	e.Start()
	waitStatus(t, sub, state.StatusRunning)
	waitLogContaining(t, sub, "exited unexpectedly")
	recovered := waitStatus(t, sub, state.StatusRunning)
	if recovered.RestartCount != 1 {
		t.Fatalf("restart count = %d, want 1", recovered.RestartCount)
	}
}

func TestUnexpectedExitSilentStopWhenDisabled(t *testing.T) {
	e, bc := newTestEngine(t, func(c *config.Config) {
		c.Server.Arguments = []string{"-c", "exit 3"}
	})
	sub := bc.Subscribe()
	defer sub.Close()

	e.Start()
	stopped := waitStatus(t, sub, state.StatusStopped)
	if stopped.RestartCount != 0 {
		t.Fatalf("restart count = %d", stopped.RestartCount)
	}
	le := waitLogContaining(t, sub, "Server exited")
	if le.Level != classify.SeverityInfo.String() {
		t.Fatalf("silent stop logged at %q", le.Level)
	}
}

func TestSendWritesToChildStdin(t *testing.T) {
	e, bc := newTestEngine(t, func(c *config.Config) {
		c.Server.Arguments = []string{"-c", "read line; echo \"got:$line\"; sleep 60"}
	})
	sub := bc.Subscribe()
	defer sub.Close()

	e.Start()
	waitStatus(t, sub, state.StatusRunning)
	if res := e.Send("save-all"); !res.OK {
		t.Fatalf("send: %+v", res)
	}
	waitLogContaining(t, sub, "got:save-all")
}

func TestRepeatedRestartsPublishOnlyCycleStatuses(t *testing.T) {
	e, bc := newTestEngine(t, func(c *config.Config) {
		c.Server.Arguments = []string{"-c", "sleep 60"}
	})
	sub := bc.Subscribe()
	defer sub.Close()

	e.Start()
	waitStatus(t, sub, state.StatusRunning)

	// With zero restart delay the respawn can race the old child's exit;
	// no cycle may ever surface a stopped status.
	for i := 0; i < 40; i++ {
		if res := e.Restart(); !res.OK {
			t.Fatalf("restart %d: %+v", i, res)
		}
		waitStatus(t, sub, state.StatusRestarting)

		deadline := time.After(15 * time.Second)
		for running := false; !running; {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					t.Fatalf("subscription closed in cycle %d", i)
				}
				if ev.Type != state.EventStatus {
					continue
				}
				switch se := ev.Data.(state.StatusEvent); se.Status {
				case state.StatusRunning:
					running = true
				case state.StatusRestarting, state.StatusStarting:
				default:
					t.Fatalf("restart cycle %d published status %q", i, se.Status)
				}
			case <-deadline:
				t.Fatalf("restart cycle %d never reached running", i)
			}
		}
	}
}

func TestAutoRestartCountdownTriggersRestart(t *testing.T) {
	e, bc := newTestEngine(t, func(c *config.Config) {
		c.Server.Arguments = []string{"-c", "sleep 60"}
		c.Server.AutoRestartHourly = true
	})
	e.autoRestartEvery = 2 * time.Second
	sub := bc.Subscribe()
	defer sub.Close()

	e.Start()
	running := waitStatus(t, sub, state.StatusRunning)
	if running.AutoRestartRemainingSecs == nil {
		t.Fatal("running status missing auto-restart countdown")
	}
	if got := *running.AutoRestartRemainingSecs; got > 2 {
		t.Fatalf("countdown = %d, want <= 2", got)
	}

	waitStatus(t, sub, state.StatusRestarting)
	waitLogContaining(t, sub, "Scheduled hourly restart")
	recovered := waitStatus(t, sub, state.StatusRunning)
	if recovered.RestartCount != 1 {
		t.Fatalf("restart count = %d, want 1", recovered.RestartCount)
	}
	if recovered.AutoRestartRemainingSecs == nil {
		t.Fatal("countdown not rescheduled after auto restart")
	}
}

func TestManualRestartOfRunningServer(t *testing.T) {
	e, bc := newTestEngine(t, func(c *config.Config) {
		c.Server.Arguments = []string{"-c", "sleep 60"}
	})
	sub := bc.Subscribe()
	defer sub.Close()

	e.Start()
	waitStatus(t, sub, state.StatusRunning)
	if res := e.Restart(); !res.OK {
		t.Fatalf("restart: %+v", res)
	}
	waitStatus(t, sub, state.StatusRestarting)
	recovered := waitStatus(t, sub, state.StatusRunning)
	if recovered.RestartCount != 1 {
		t.Fatalf("restart count = %d, want 1", recovered.RestartCount)
	}
}
