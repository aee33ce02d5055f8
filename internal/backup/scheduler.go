package backup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/warden/internal/classify"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/notify"
	"github.com/loykin/warden/internal/state"
)

// disabledRecheck bounds how long a disabled scheduler waits before looking
// at the config again.
const disabledRecheck = time.Minute

type request struct {
	reply chan result
}

type result struct {
	path string
	err  error
}

// Scheduler runs periodic archives of the configured source folder and serves
// on-demand runs. All archive work happens on the scheduler goroutine, so a
// manual run and a timed run never overlap.
type Scheduler struct {
	cfg      *config.Store
	bc       *state.Broadcaster
	notifier notify.Dispatcher
	sink     history.Sink // may be nil

	trigger chan request

	mu   sync.Mutex
	next time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(cfg *config.Store, bc *state.Broadcaster, notifier notify.Dispatcher, sink history.Sink) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		bc:       bc,
		notifier: notifier,
		sink:     sink,
		trigger:  make(chan request),
		stop:     make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// NextRun reports when the next timed archive is due. ok is false while
// backups are disabled.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next, !s.next.IsZero()
}

func (s *Scheduler) setNext(t time.Time) {
	s.mu.Lock()
	s.next = t
	s.mu.Unlock()
}

// TriggerNow runs an archive immediately and waits for the outcome. It works
// even while backups are disabled in config. A failed run does not move the
// timed schedule.
func (s *Scheduler) TriggerNow() (string, error) {
	req := request{reply: make(chan result, 1)}
	select {
	case s.trigger <- req:
	case <-s.stop:
		return "", fmt.Errorf("backup scheduler stopped")
	}
	select {
	case res := <-req.reply:
		return res.path, res.err
	case <-s.stop:
		return "", fmt.Errorf("backup scheduler stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		cfg := s.cfg.Current().Backup
		var wait <-chan time.Time
		if cfg.Enabled {
			interval := time.Duration(cfg.IntervalHours) * time.Hour
			s.mu.Lock()
			if s.next.IsZero() {
				s.next = time.Now().Add(interval)
			}
			due := time.Until(s.next)
			s.mu.Unlock()
			wait = time.After(due)
		} else {
			s.setNext(time.Time{})
			wait = time.After(disabledRecheck)
		}

		select {
		case <-s.stop:
			return
		case req := <-s.trigger:
			path, err := s.runBackup(s.cfg.Current().Backup)
			req.reply <- result{path: path, err: err}
		case <-wait:
			if !cfg.Enabled {
				continue
			}
			_, _ = s.runBackup(cfg)
			s.setNext(time.Now().Add(time.Duration(cfg.IntervalHours) * time.Hour))
		}
	}
}

func (s *Scheduler) runBackup(cfg config.BackupConfig) (string, error) {
	started := time.Now()
	path, err := CreateArchive(cfg.SourceFolder, cfg.BackupFolder, started)
	if err != nil {
		metrics.IncBackup("failure")
		msg := fmt.Sprintf("Backup failed: %v", err)
		s.bc.Log(classify.SeverityError, state.SourceWatcher, msg)
		s.notifier.Notify(notify.KindError, msg)
		s.record(history.EventBackup, msg)
		return "", err
	}

	metrics.IncBackup("success")
	metrics.SetBackupSuccess(float64(time.Now().Unix()))
	name := ArchiveName(started)
	s.bc.WatcherLog(fmt.Sprintf("Backup created: %s", name))
	s.notifier.Notify(notify.KindBackup, fmt.Sprintf("Backup created: %s", name))
	s.record(history.EventBackup, name)

	if cfg.RetentionDays > 0 {
		retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		removed, perr := prune(cfg.BackupFolder, retention, time.Now())
		if perr != nil {
			s.bc.Log(classify.SeverityWarning, state.SourceWatcher, fmt.Sprintf("Backup retention: %v", perr))
		} else if removed > 0 {
			slog.Info("pruned old backups", "removed", removed)
		}
	}
	return path, nil
}

func (s *Scheduler) record(eventType, detail string) {
	if s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sink.Record(ctx, history.Event{Type: eventType, OccurredAt: time.Now().UTC(), Detail: detail}); err != nil {
		slog.Warn("history record failed", "type", eventType, "error", err)
	}
}
