package backup

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/warden/internal/classify"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/notify"
	"github.com/loykin/warden/internal/state"
)

func TestArchiveNameRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	name := ArchiveName(at)
	if name != "backup_20260314_092653.tar.gz" {
		t.Fatalf("name = %q", name)
	}
	got, ok := timeFromName(name)
	if !ok || !got.Equal(at) {
		t.Fatalf("timeFromName = %v, %v", got, ok)
	}
	if _, ok := timeFromName("backup_garbage.tar.gz"); ok {
		t.Fatal("parsed a malformed name")
	}
}

func TestCreateArchiveContents(t *testing.T) {
	src := filepath.Join(t.TempDir(), "world")
	if err := os.MkdirAll(filepath.Join(src, "region"), 0o750); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(src, "level.dat"), "level")
	writeFile(t, filepath.Join(src, "region", "r.0.0.mca"), "chunk data")

	dest := t.TempDir()
	path, err := CreateArchive(src, dest, time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	entries := readTarGz(t, path)
	if entries["world/level.dat"] != "level" {
		t.Fatalf("level.dat = %q", entries["world/level.dat"])
	}
	if entries["world/region/r.0.0.mca"] != "chunk data" {
		t.Fatalf("region file = %q", entries["world/region/r.0.0.mca"])
	}
}

func TestCreateArchiveMissingSource(t *testing.T) {
	_, err := CreateArchive(filepath.Join(t.TempDir(), "absent"), t.TempDir(), time.Now())
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestListSortedNewestFirst(t *testing.T) {
	dir := t.TempDir()
	old := ArchiveName(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	recent := ArchiveName(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	writeFile(t, filepath.Join(dir, old), "a")
	writeFile(t, filepath.Join(dir, recent), "bb")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	infos, err := List(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != recent || infos[1].Name != old {
		t.Fatalf("infos = %+v", infos)
	}
	if infos[0].SizeBytes != 2 {
		t.Fatalf("size = %d", infos[0].SizeBytes)
	}
}

func TestListMissingFolder(t *testing.T) {
	infos, err := List(filepath.Join(t.TempDir(), "absent"))
	if err != nil || len(infos) != 0 {
		t.Fatalf("infos = %v err = %v", infos, err)
	}
}

func TestResolveRejectsUnsafeNames(t *testing.T) {
	for _, name := range []string{
		"../etc/passwd",
		"backup_20260101_000000.tar.gz/../x",
		"backup_20260101_000000.tgz",
		"server.jar",
		"",
	} {
		if _, err := Resolve("/backups", name); err == nil {
			t.Fatalf("accepted %q", name)
		}
	}
	path, err := Resolve("/backups", "backup_20260101_000000.tar.gz")
	if err != nil || path != filepath.Join("/backups", "backup_20260101_000000.tar.gz") {
		t.Fatalf("path = %q err = %v", path, err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	dir := t.TempDir()
	name := ArchiveName(time.Now())
	writeFile(t, filepath.Join(dir, name), "x")

	if err := Delete(dir, name); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := Delete(dir, name); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := Delete(dir, "../escape"); err == nil {
		t.Fatal("unsafe delete accepted")
	}
}

func TestPruneRespectsRetention(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	stale := ArchiveName(now.Add(-10 * 24 * time.Hour))
	fresh := ArchiveName(now.Add(-2 * 24 * time.Hour))
	writeFile(t, filepath.Join(dir, stale), "old")
	writeFile(t, filepath.Join(dir, fresh), "new")

	removed, err := prune(dir, 7*24*time.Hour, now)
	if err != nil || removed != 1 {
		t.Fatalf("removed = %d err = %v", removed, err)
	}
	infos, _ := List(dir)
	if len(infos) != 1 || infos[0].Name != fresh {
		t.Fatalf("infos = %+v", infos)
	}
}

func TestSchedulerTriggerNow(t *testing.T) {
	src := filepath.Join(t.TempDir(), "data")
	if err := os.MkdirAll(src, 0o750); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(src, "save.dat"), "payload")
	dest := t.TempDir()

	cfg := config.Default()
	cfg.Backup.Enabled = true
	cfg.Backup.SourceFolder = src
	cfg.Backup.BackupFolder = dest
	cfg.Backup.IntervalHours = 24
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"), cfg)

	bc := state.NewBroadcaster()
	defer bc.Close()
	s := NewScheduler(store, bc, notify.Noop{}, nil)
	s.Start()
	defer s.Close()

	path, err := s.TriggerNow()
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if _, ok := s.NextRun(); !ok {
		t.Fatal("next run not scheduled")
	}
}

func TestSchedulerFailureLogsError(t *testing.T) {
	cfg := config.Default()
	cfg.Backup.Enabled = true
	cfg.Backup.SourceFolder = filepath.Join(t.TempDir(), "absent")
	cfg.Backup.BackupFolder = t.TempDir()
	cfg.Backup.IntervalHours = 24
	store := config.NewStore(filepath.Join(t.TempDir(), "config.json"), cfg)

	bc := state.NewBroadcaster()
	defer bc.Close()
	s := NewScheduler(store, bc, notify.Noop{}, nil)
	s.Start()
	defer s.Close()

	if _, err := s.TriggerNow(); err == nil {
		t.Fatal("expected failure for missing source")
	}
	var found bool
	for _, ln := range bc.Logs(0) {
		if ln.Source == state.SourceWatcher && ln.Level == classify.SeverityError.String() &&
			strings.Contains(ln.Message, "Backup failed") {
			found = true
		}
	}
	if !found {
		t.Fatal("watcher error log missing")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func readTarGz(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)

	entries := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		entries[hdr.Name] = string(data)
	}
	return entries
}
