// Package catalogue loads the campus event catalogue from a YAML file and
// keeps it current as the file changes.
package catalogue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	appLog "uqconnect/internal/log"
	"uqconnect/internal/metrics"
	"uqconnect/internal/model"
)

// Loader reads a catalogue file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	events   []model.CatalogueEvent
	byID     map[string]int
	onChange []func([]model.CatalogueEvent)
}

// NewLoader creates a Loader and performs the initial load. A missing file is
// created with the default campus events.
func NewLoader(path string) (*Loader, error) {
	if path == "" {
		return nil, errors.New("catalogue path is empty")
	}
	l := &Loader{path: path}
	events, err := l.load()
	if errors.Is(err, fs.ErrNotExist) {
		// First run: seed the default catalogue.
		appLog.Info("catalogue file missing; writing defaults", "path", path)
		if err := Save(path, Defaults()); err != nil {
			return nil, err
		}
		events, err = Defaults(), nil
	}
	if err != nil {
		return nil, err
	}
	l.swap(events)
	return l, nil
}

// Events returns the current snapshot. The slice must not be modified.
func (l *Loader) Events() []model.CatalogueEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events
}

// Find returns the catalogue event with the given id.
func (l *Loader) Find(id string) (model.CatalogueEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byID[id]
	if !ok {
		return model.CatalogueEvent{}, false
	}
	return l.events[i], true
}

// OnChange registers a callback invoked whenever the catalogue reloads.
func (l *Loader) OnChange(fn func([]model.CatalogueEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Reload forces an immediate re-read of the catalogue file. On error,
// including a missing file, the previous snapshot stays in place.
func (l *Loader) Reload() ([]model.CatalogueEvent, error) {
	events, err := l.load()
	if err != nil {
		return nil, err
	}
	l.swap(events)
	return events, nil
}

// Watch starts a background goroutine that hot-reloads the catalogue on file
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalogue watcher: %w", err)
	}
	// Watch the directory: editors and atomic writers replace the file.
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("catalogue watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					if _, err := l.Reload(); err != nil {
						appLog.Error("catalogue reload failed; keeping previous snapshot", err, "path", l.path)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				appLog.Error("catalogue watcher error", err, "path", l.path)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

func (l *Loader) swap(events []model.CatalogueEvent) {
	byID := make(map[string]int, len(events))
	for i, ev := range events {
		byID[ev.ID] = i
	}

	l.mu.Lock()
	l.events = events
	l.byID = byID
	callbacks := make([]func([]model.CatalogueEvent), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	metrics.CatalogueSize.Set(float64(len(events)))
	appLog.Info("catalogue loaded", "path", l.path, "event_count", len(events))
	for _, fn := range callbacks {
		fn(events)
	}
}

func (l *Loader) load() ([]model.CatalogueEvent, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue %s: %w", l.path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML (or JSON) list of catalogue events. Invalid entries
// are dropped and logged; the remaining ones keep file order.
func Parse(data []byte) ([]model.CatalogueEvent, error) {
	var raw []model.CatalogueEvent
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}

	out := make([]model.CatalogueEvent, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, ev := range raw {
		if ev.ID == "" {
			ev.ID = stableID(ev)
		}
		if err := Validate(ev); err != nil {
			appLog.Warn("catalogue: dropping invalid event", "index", i, "id", ev.ID, "reason", err.Error())
			continue
		}
		if seen[ev.ID] {
			appLog.Warn("catalogue: dropping duplicate event id", "index", i, "id", ev.ID)
			continue
		}
		seen[ev.ID] = true
		out = append(out, ev)
	}
	return out, nil
}

// Validate checks the fields of a single catalogue event.
func Validate(ev model.CatalogueEvent) error {
	switch {
	case strings.TrimSpace(ev.Title) == "":
		return errors.New("title is empty")
	case ev.Duration <= 0:
		return fmt.Errorf("duration %d is not positive", ev.Duration)
	case ev.Capacity <= 0:
		return fmt.Errorf("capacity %d is not positive", ev.Capacity)
	case ev.Registered < 0 || ev.Registered > ev.Capacity:
		return fmt.Errorf("registered %d outside [0, %d]", ev.Registered, ev.Capacity)
	}
	if _, _, err := ev.Interval(); err != nil {
		return err
	}
	return nil
}

// stableID derives an id from the title, date and time so that the same
// entry keeps its id across reloads.
func stableID(ev model.CatalogueEvent) string {
	name := ev.Title + "|" + ev.Date + "|" + ev.Time
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Save writes events to path atomically with 0600 permissions.
func Save(path string, events []model.CatalogueEvent) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(events)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o600)
}
