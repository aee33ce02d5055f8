package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const nameTimeLayout = "20060102_150405"

// ArchiveName returns the canonical archive file name for a run at t.
// Timestamps are UTC so names sort and parse the same on every host.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("backup_%s.tar.gz", t.UTC().Format(nameTimeLayout))
}

// timeFromName recovers the run timestamp embedded in an archive name.
func timeFromName(name string) (time.Time, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "backup_"), ".tar.gz")
	t, err := time.ParseInLocation(nameTimeLayout, trimmed, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CreateArchive writes a gzip-compressed tar of sourceDir into destDir and
// returns the archive path. Entries are rooted at the source folder's base
// name. A partial file is removed on failure.
func CreateArchive(sourceDir, destDir string, now time.Time) (string, error) {
	if _, err := os.Stat(sourceDir); err != nil {
		return "", fmt.Errorf("backup source: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("backup folder: %w", err)
	}

	path := filepath.Join(destDir, ArchiveName(now))
	if err := writeArchive(path, sourceDir); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func writeArchive(path, sourceDir string) (err error) {
	// #nosec G304 -- path is derived from the operator's backup folder
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	// Close in reverse order so the gzip trailer and tar footer are flushed.
	defer func() {
		for _, c := range []io.Closer{tw, gz, out} {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()

	root := filepath.Base(filepath.Clean(sourceDir))
	return filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(root, rel))
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		// #nosec G304 -- p comes from walking the configured source folder
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	})
}
