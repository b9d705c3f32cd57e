package instruments

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Parse decodes and resolves an instruments YAML document.
func Parse(data []byte) (*Document, error) {
	var raw map[string]any
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	}
	return Resolve(raw)
}

// Loader reads the instruments file and tracks its modification time so
// callers can cheaply ask whether a reload is due.
type Loader struct {
	path string

	mu      sync.Mutex
	modTime time.Time
}

// NewLoader creates a Loader for path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the watched file path.
func (l *Loader) Path() string { return l.path }

// Load reads and resolves the file, remembering its modification time.
func (l *Loader) Load() (*Document, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("stat instruments file: %w", err)
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read instruments file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(l.path), err)
	}
	l.mu.Lock()
	l.modTime = info.ModTime()
	l.mu.Unlock()
	log.Printf("[instruments] loaded %d instruments from %s", len(doc.Instruments), filepath.Base(l.path))
	return doc, nil
}

// Changed reports whether the file's modification time differs from the
// last successful Load. A missing file reports false.
func (l *Loader) Changed() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return !info.ModTime().Equal(l.modTime)
}

// Watch sends on ch whenever the file is written, created or renamed into
// place. The parent directory is watched so editors that replace the file
// atomically are handled. Sends never block: a pending signal absorbs new
// ones. Watch returns when ctx is cancelled.
func Watch(ctx context.Context, path string, ch chan<- struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.Printf("[instruments] watching %s", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != abs {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("[instruments] watcher error: %v", err)
		}
	}
}
