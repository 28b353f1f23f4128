package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// AppendJSONL appends v as a single compact JSON line and syncs before
// returning. Each call opens, appends, and closes; the surrounding lock
// scope serializes writers.
func AppendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling record for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 - controlled path
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return nil
}

// JSONLLine is one physical line of a JSONL file as read back.
type JSONLLine struct {
	Number int    // 1-based line number
	Raw    []byte // line content without trailing newline
	Err    error  // non-nil when the line is not valid JSON
}

// ScanJSONL reads a JSONL file line by line, calling fn for each line.
// A corrupt line is reported through JSONLLine.Err but does not stop the
// scan; a missing file yields no lines and no error. If fn returns false the
// scan stops early.
func ScanJSONL(path string, fn func(line JSONLLine) bool) error {
	f, err := os.Open(path) // #nosec G304 - controlled path
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		line := JSONLLine{Number: n, Raw: append([]byte(nil), raw...)}
		if !json.Valid(raw) {
			line.Err = fmt.Errorf("line %d of %s: invalid JSON", n, path)
		}
		if !fn(line) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// DecodeJSONL reads every valid line into out (a pointer to a slice element
// factory is awkward in Go, so this decodes into raw messages).
func DecodeJSONL(path string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := ScanJSONL(path, func(line JSONLLine) bool {
		if line.Err == nil {
			out = append(out, json.RawMessage(line.Raw))
		}
		return true
	})
	return out, err
}

// TruncateTrailingCorruption rewrites path keeping only the leading run of
// valid JSON lines. Returns how many lines were dropped. Used by doctor --fix
// to heal a torn final append.
func TruncateTrailingCorruption(path string) (int, error) {
	var keep [][]byte
	dropped := 0
	sawCorrupt := false
	err := ScanJSONL(path, func(line JSONLLine) bool {
		if line.Err != nil || sawCorrupt {
			sawCorrupt = true
			dropped++
			return true
		}
		keep = append(keep, line.Raw)
		return true
	})
	if err != nil {
		return 0, err
	}
	if dropped == 0 {
		return 0, nil
	}
	var buf bytes.Buffer
	for _, l := range keep {
		buf.Write(l)
		buf.WriteByte('\n')
	}
	if err := WriteFileAtomic(path, buf.Bytes(), 0600); err != nil {
		return 0, err
	}
	return dropped, nil
}
