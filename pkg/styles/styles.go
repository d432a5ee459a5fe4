// Package styles loads communication styles used to shape reply drafts.
package styles

import (
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

// DefaultStyle is used when nothing more specific resolves.
const DefaultStyle = "business"

// Example is a worked drafting example.
type Example struct {
	Context string `yaml:"context"`
	Input   string `yaml:"input"`
	Draft   string `yaml:"draft"`
}

// Style describes how replies in one register are written.
type Style struct {
	Rules    []string  `yaml:"rules"`
	SignOff  string    `yaml:"sign_off"`
	Language string    `yaml:"language"`
	Examples []Example `yaml:"examples"`
}

type file struct {
	Styles map[string]Style `yaml:"styles"`
}

// Store holds the current styles and reloads them when the file changes.
type Store struct {
	path string

	mu     sync.RWMutex
	styles map[string]Style
}

// New returns a store with the given styles, for callers that do not read a file.
func New(styles map[string]Style) *Store {
	if styles == nil {
		styles = map[string]Style{}
	}
	return &Store{styles: styles}
}

// Load reads styles from path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, styles: map[string]Style{}}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[Styles] %s not found, using built-in defaults", s.path)
			return nil
		}
		return fmt.Errorf("reading styles %s: %w", s.path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing styles %s: %w", s.path, err)
	}
	if f.Styles == nil {
		f.Styles = map[string]Style{}
	}

	s.mu.Lock()
	s.styles = f.Styles
	s.mu.Unlock()
	return nil
}

// Get returns the named style, falling back to DefaultStyle and then to an
// empty style.
func (s *Store) Get(name string) Style {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.styles[name]; ok {
		return st
	}
	return s.styles[DefaultStyle]
}

// Names returns the known style names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.styles))
	for n := range s.styles {
		names = append(names, n)
	}
	return names
}

// Watch reloads the file on every change until ctx is done. Parse errors keep
// the previous styles in place.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Printf("[Styles] Watching %s for changes", s.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				if err := s.reload(); err != nil {
					log.Printf("[Styles] Reload failed, keeping previous styles: %v", err)
					return
				}
				log.Printf("[Styles] Reloaded %s", s.path)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[Styles] Watch error: %v", err)
		}
	}
}
