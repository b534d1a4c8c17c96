// Package transcript writes a conversation's turns to an append-only CSV
// file, one row per exported message, so a call can be reviewed or audited
// after the fact without replaying the audio.
package transcript

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/christian-lee/callpilot/internal/conversation"
)

// Logger appends exported conversation messages to a CSV file. One file per
// session (assistant start -> assistant stop).
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	writer    *csv.Writer
	session   string
	startTime time.Time
}

// NewLogger creates a transcript logger for one conversation session.
// Files are saved as: <dir>/<name>_<date>_<time>.csv
func NewLogger(dir, name string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	now := time.Now()
	session := now.Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.csv", sanitize(name), session)
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create transcript file: %w", err)
	}

	// UTF-8 BOM for Excel compatibility.
	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write BOM: %w", err)
	}

	w := csv.NewWriter(f)
	w.Write([]string{"time", "elapsed", "id", "role", "attributes", "contents"})
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	return &Logger{file: f, writer: w, session: session, startTime: now}, nil
}

// WriteMessages appends every message in msgs as one row each. Meant to be
// called with the slice ExportIncremental just returned.
func (l *Logger) WriteMessages(msgs []*conversation.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer == nil {
		return
	}

	for _, m := range msgs {
		now := time.Now()
		elapsed := now.Sub(l.startTime)
		row := []string{
			now.Format("15:04:05"),
			fmt.Sprintf("%d:%02d", int(elapsed.Minutes()), int(elapsed.Seconds())%60),
			fmt.Sprintf("%d", m.ID),
			string(m.Role),
			attributeList(m),
			strings.Join(m.Contents, " "),
		}
		if err := l.writer.Write(row); err != nil {
			slog.Error("transcript write failed", "err", err)
			return
		}
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		slog.Error("transcript flush failed", "err", err)
	}
}

func attributeList(m *conversation.Message) string {
	var attrs []string
	for a, set := range m.Metadata.Attributes {
		if set {
			attrs = append(attrs, string(a))
		}
	}
	return strings.Join(attrs, "|")
}

// Close flushes and closes the file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		l.writer.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the underlying file path.
func (l *Logger) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// ListFiles returns the files in dir (subdirectories skipped) in reverse
// file-name order. Since NewLogger names files <name>_<date>_<time>.csv,
// files sharing a name prefix come out newest first; files with different
// prefixes are ordered by name, not by time. Files are not filtered by
// extension.
func ListFiles(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []FileInfo
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})
	}
	return files, nil
}

// FileInfo describes a transcript file.
type FileInfo struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	ModTime string `json:"mod_time"`
}
