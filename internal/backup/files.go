package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// Info describes one archive on disk.
type Info struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

var archiveNameRE = regexp.MustCompile(`^backup_\d{8}_\d{6}\.tar\.gz$`)

// ErrInvalidName rejects names that are not canonical archive file names.
// This is the only gate between API input and the filesystem, so anything
// with separators or traversal sequences fails the pattern outright.
var ErrInvalidName = errors.New("invalid backup name")

// List returns the archives in dir, newest first. A missing folder is an
// empty list, not an error.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !archiveNameRE.MatchString(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		created, ok := timeFromName(e.Name())
		if !ok {
			created = fi.ModTime().UTC()
		}
		infos = append(infos, Info{Name: e.Name(), SizeBytes: fi.Size(), CreatedAt: created})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos, nil
}

// Resolve maps an archive name to its path under dir, refusing anything that
// is not a canonical archive name.
func Resolve(dir, name string) (string, error) {
	if !archiveNameRE.MatchString(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(dir, name), nil
}

// Delete removes the named archive. Deleting an absent archive succeeds.
func Delete(dir, name string) error {
	path, err := Resolve(dir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete backup: %w", err)
	}
	return nil
}

// prune deletes archives whose run timestamp is older than the retention
// window. It returns the number removed and the first error encountered.
func prune(dir string, retention time.Duration, now time.Time) (int, error) {
	infos, err := List(dir)
	if err != nil {
		return 0, err
	}
	cutoff := now.UTC().Add(-retention)
	removed := 0
	var firstErr error
	for _, info := range infos {
		if !info.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, info.Name)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
