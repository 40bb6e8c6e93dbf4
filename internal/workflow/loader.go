package workflow

import (
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Decode parses a YAML (or JSON, which is valid YAML) workflow document
// and validates it.
func Decode(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	if err := Validate(&wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Load reads and validates a workflow file.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	wf, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// Loader holds the latest valid version of a workflow file and can watch
// it for changes.
type Loader struct {
	path     string
	logger   *zap.Logger
	mu       sync.RWMutex
	current  *Workflow
	onChange []func(*Workflow)
	onError  []func(error)
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{path: path, logger: logger}
	wf, err := Load(path)
	if err != nil {
		return nil, err
	}
	l.current = wf
	return l, nil
}

// Workflow returns the latest valid workflow.
func (l *Loader) Workflow() *Workflow {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked after every successful reload.
func (l *Loader) OnChange(fn func(*Workflow)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// OnError registers a callback invoked when a reload fails. The previous
// workflow stays current.
func (l *Loader) OnError(fn func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onError = append(l.onError, fn)
}

// Watch starts a background goroutine that reloads the file on writes.
// Call the returned stop function to clean up; it waits for the goroutine.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("workflow watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("workflow watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					l.Reload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("workflow watcher error", zap.String("path", l.path), zap.Error(err))
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}, nil
}

// Reload forces an immediate re-read of the file.
func (l *Loader) Reload() (*Workflow, error) {
	wf, err := Load(l.path)
	if err != nil {
		l.logger.Warn("workflow reload failed, keeping previous version", zap.String("path", l.path), zap.Error(err))
		l.mu.RLock()
		callbacks := slices.Clone(l.onError)
		l.mu.RUnlock()
		for _, fn := range callbacks {
			fn(err)
		}
		return nil, err
	}
	l.mu.Lock()
	l.current = wf
	callbacks := slices.Clone(l.onChange)
	l.mu.Unlock()
	l.logger.Info("workflow reloaded", zap.String("path", l.path), zap.String("id", wf.ID), zap.Int("steps", len(wf.Steps)))
	for _, fn := range callbacks {
		fn(wf)
	}
	return wf, nil
}
