package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileWriter appends a session transcript to a file with rotation. When
// the file grows past MaxSize it is renamed to path.1, older copies shift
// up, and at most MaxFiles of them are kept.
type FileWriter struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxSize  int64
	maxFiles int
	written  int64
}

// FileConfig configures a FileWriter.
type FileConfig struct {
	Path     string
	MaxSize  int64 // bytes, default 1MB
	MaxFiles int   // rotated copies kept, default 3
}

// NewFileWriter opens (or creates) the transcript file.
func NewFileWriter(cfg FileConfig) (*FileWriter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 3
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	w := &FileWriter{
		file:     f,
		path:     cfg.Path,
		maxSize:  maxSize,
		maxFiles: maxFiles,
	}
	if info, err := f.Stat(); err == nil {
		w.written = info.Size()
	}
	return w, nil
}

// Write implements io.Writer. A write that takes the file past its size
// limit completes before the file is rotated.
func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, fmt.Errorf("log file closed")
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, err
	}
	if w.written >= w.maxSize {
		if err := w.rotate(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Close closes the log file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate must not log: the default logger may write back into w.
func (w *FileWriter) rotate() error {
	w.file.Close()
	w.file = nil

	for i := w.maxFiles - 1; i > 0; i-- {
		os.Rename(fmt.Sprintf("%s.%d", w.path, i), fmt.Sprintf("%s.%d", w.path, i+1))
	}
	os.Rename(w.path, w.path+".1")
	os.Remove(fmt.Sprintf("%s.%d", w.path, w.maxFiles+1))

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("reopen rotated log file: %w", err)
	}
	w.file = f
	w.written = 0
	return nil
}

// NewFileHandler returns a text handler for a transcript file. The shell's
// extra levels are written as GOOD and FATAL.
func NewFileHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey || len(groups) > 0 {
				return a
			}
			if l, ok := a.Value.Any().(slog.Level); ok {
				a.Value = slog.StringValue(LevelName(l))
			}
			return a
		},
	})
}

// LevelName names a level, including LevelGood and LevelFatal.
func LevelName(l slog.Level) string {
	switch l {
	case LevelGood:
		return "GOOD"
	case LevelFatal:
		return "FATAL"
	default:
		return l.String()
	}
}
