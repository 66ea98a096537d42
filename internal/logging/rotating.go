// internal/logging/rotating.go
package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultBackups is the number of rotated files kept when none is given.
const DefaultBackups = 5

// RotatingWriter implements io.Writer with size-based rotation. Rotated files
// are gzipped as path.1.gz ... path.N.gz, newest first.
type RotatingWriter struct {
	path    string
	maxSize int64
	backups int
	file    *os.File
	size    int64
	mu      sync.Mutex
}

// NewRotatingWriter opens path for appending, creating parent directories.
// backups <= 0 keeps DefaultBackups files.
func NewRotatingWriter(path string, maxSize int64, backups int) (*RotatingWriter, error) {
	if backups <= 0 {
		backups = DefaultBackups
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	return &RotatingWriter{
		path:    path,
		maxSize: maxSize,
		backups: backups,
		file:    f,
		size:    info.Size(),
	}, nil
}

// Write implements io.Writer.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the writer.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *RotatingWriter) backupName(i int) string {
	return fmt.Sprintf("%s.%d.gz", w.path, i)
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	os.Remove(w.backupName(w.backups))
	for i := w.backups - 1; i >= 1; i-- {
		os.Rename(w.backupName(i), w.backupName(i+1))
	}

	if err := compressFile(w.path, w.backupName(1)); err != nil {
		// keep the data uncompressed rather than lose it
		os.Rename(w.path, w.path+".1")
	} else {
		os.Remove(w.path)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.size = 0
	return nil
}

func compressFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
