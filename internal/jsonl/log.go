// Package jsonl provides an append-only, typed JSON-lines file. It backs the
// file storage mode of the feedback and classroom stores.
//
// Writers take an exclusive advisory lock on a sibling ".lock" file and
// readers a shared one, so several processes may point at the same storage
// directory on one host. Hosts sharing state over the network use PostgreSQL.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// maxLineSize bounds a single encoded record.
const maxLineSize = 4 << 20

// Log is an append-only file of JSON-encoded values of type T, one per line.
// Safe for concurrent use.
type Log[T any] struct {
	mu   sync.RWMutex
	path string
}

// Open returns a Log writing to path. The parent directory is created if
// needed; the file itself is created on first Append.
func Open[T any](path string) (*Log[T], error) {
	if path == "" {
		return nil, errors.New("jsonl: path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonl: create directory: %w", err)
	}
	return &Log[T]{path: path}, nil
}

// Path returns the backing file path.
func (l *Log[T]) Path() string { return l.path }

// Append encodes v and writes it as a new line.
func (l *Log[T]) Append(v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jsonl: marshal: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	unlock, err := l.lockFile(false)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("jsonl: open file: %w", err)
	}
	defer f.Close()

	if err := repairTail(f); err != nil {
		return fmt.Errorf("jsonl: repair %s: %w", l.path, err)
	}

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("jsonl: write: %w", err)
	}
	return nil
}

// Scan decodes every record in file order and calls fn for each one until fn
// returns false. A missing file is treated as empty. An undecodable final
// line is an interrupted write and is skipped; anywhere else it is an error.
func (l *Log[T]) Scan(fn func(T) bool) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	unlock, err := l.lockFile(true)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jsonl: open file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var (
		line    int
		pending error // decode failure, fatal unless it was the last line
	)
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		if pending != nil {
			return pending
		}
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			pending = fmt.Errorf("jsonl: decode line %d: %w", line, err)
			continue
		}
		if !fn(v) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("jsonl: read: %w", err)
	}
	if pending != nil {
		slog.Warn("jsonl: skipping torn final line", "path", l.path, "err", pending)
	}
	return nil
}

// repairTail makes sure the next append starts on a fresh line. A final line
// without its newline is the remains of an interrupted write: it is completed
// when it holds valid JSON and cut off otherwise.
func repairTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}

	n := min(size, int64(maxLineSize))
	tail := make([]byte, n)
	if _, err := f.ReadAt(tail, size-n); err != nil {
		return err
	}
	start := bytes.LastIndexByte(tail, '\n') + 1
	if json.Valid(tail[start:]) {
		_, err := f.Write([]byte{'\n'})
		return err
	}
	keep := size - n + int64(start)
	slog.Warn("jsonl: truncating torn final line", "path", f.Name(), "bytes", size-keep)
	return f.Truncate(keep)
}

// lockFile takes the cross-process lock on a descriptor owned by this call
// alone; the returned func releases it.
func (l *Log[T]) lockFile(shared bool) (func(), error) {
	fl := flock.New(l.path + ".lock")
	lock := fl.Lock
	if shared {
		lock = fl.RLock
	}
	if err := lock(); err != nil {
		return nil, fmt.Errorf("jsonl: lock %s: %w", fl.Path(), err)
	}
	return func() { _ = fl.Unlock() }, nil
}

// Ping verifies the backing directory is reachable.
func (l *Log[T]) Ping() error {
	if _, err := os.Stat(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("jsonl: stat directory: %w", err)
	}
	return nil
}
