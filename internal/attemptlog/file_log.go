package attemptlog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileLog keeps one JSON record per line. Appends go through a single
// O_APPEND write so a reader never observes half a record.
type FileLog struct {
	path string

	mu sync.Mutex
}

func NewFileLog(path string) (*FileLog, error) {
	if path == "" {
		return nil, errors.New("attempt log path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create attempt log dir: %w", err)
	}
	return &FileLog{path: path}, nil
}

func (l *FileLog) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := encode(rec)
	if err != nil {
		return fmt.Errorf("encode attempt %s: %w", rec.ID, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open attempt log: %w", err)
	}

	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append attempt %s: %w", rec.ID, err)
	}
	return f.Close()
}

func (l *FileLog) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return []Record{}, nil
	}
	all, err := l.readAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	reverse(all)
	return all, nil
}

func (l *FileLog) Len(ctx context.Context) (int, error) {
	all, err := l.readAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

func (l *FileLog) readAll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	raw, err := os.ReadFile(l.path)
	l.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read attempt log: %w", err)
	}

	out := []Record{}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := decode(line)
		if err != nil {
			slog.Warn("skipping unreadable attempt log line", "path", l.path, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
