package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// WriteFileAtomic writes data to path via a temp file in the same directory,
// fsyncs, then renames into place. Readers see either the old or the new
// content, never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}

	if err := renameWithRetry(tmpName, path, 3, 100*time.Millisecond); err != nil {
		return err
	}
	tmpName = ""

	syncDir(dir)
	return nil
}

// WriteJSONAtomic pretty-prints v and writes it atomically with a trailing
// newline, the canonical snapshot encoding.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	return WriteFileAtomic(path, append(data, '\n'), 0600)
}

// ReadJSON reads and unmarshals a JSON file into dst.
func ReadJSON(path string, dst any) error {
	data, err := os.ReadFile(path) // #nosec G304 - controlled path under state dir
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// renameWithRetry performs an atomic rename with retry for Windows, where
// renames can fail transiently while another process holds a handle on the
// target.
func renameWithRetry(oldPath, newPath string, maxRetries int, initialDelay time.Duration) error {
	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := os.Rename(oldPath, newPath)
		if err == nil {
			return nil
		}
		lastErr = err

		// On non-Windows the error is likely permanent.
		if runtime.GOOS != "windows" {
			break
		}
		if attempt < maxRetries {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("rename %s -> %s: %w", oldPath, newPath, lastErr)
}

// syncDir fsyncs a directory so the rename itself is durable. Best effort:
// not all platforms support it.
func syncDir(dir string) {
	d, err := os.Open(dir) // #nosec G304 - controlled path under state dir
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
