// Package settings persists small per-plugin configuration as a flat
// JSON file with crash and corruption recovery.
//
// Each plugin owns one file at <root>/<plugin>.json containing only its
// declared options. The file is human-readable and keys keep
// declaration order so edits diff cleanly. Every write persists the
// whole option set immediately, and every write re-reads the file
// first so external edits to other options survive.
//
// If the file cannot be loaded - missing, truncated, not a JSON object
// - the store heals itself: an existing file is renamed to a sibling
// backup for forensic recovery, a fresh file of declared defaults is
// written, and the store reloads. An existing backup is never
// overwritten; recovery fails loudly instead.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

// BackupSuffix is appended to a corrupt file's path before recovery.
const BackupSuffix = ".corrupt"

// Store is one plugin's settings file. Values are JSON-typed: numbers
// load as float64, objects as map[string]any.
type Store struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger

	defaults map[string]any
	order    []string
	values   map[string]any
}

// Open creates the store for plugin under root, loading the backing
// file and running the recovery protocol if the load fails. A store
// that Open returns is always in a loadable state; an error from Open
// is a fatal configuration error.
func Open(root, plugin string, log *zap.Logger) (*Store, error) {
	if plugin == "" {
		return nil, fmt.Errorf("settings: empty plugin name")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("settings: create root: %w", err)
	}

	s := &Store{
		path:     filepath.Join(root, plugin+".json"),
		log:      log,
		defaults: make(map[string]any),
	}

	if err := s.load(); err != nil {
		s.log.Warn("settings load failed, recovering",
			zap.String("path", s.path),
			zap.Error(err))
		if err := s.forceLoad(); err != nil {
			return nil, fmt.Errorf("settings: recover %s: %w", s.path, err)
		}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Declare registers an option with its default. The first declaration
// for a name wins; later declarations are no-ops. Declaring an option
// that has no stored value yet triggers an immediate save and reload
// so the file always reflects every declared option.
func (s *Store) Declare(name string, def any) error {
	if name == "" {
		return fmt.Errorf("settings: empty option name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, declared := s.defaults[name]; declared {
		return nil
	}
	s.defaults[name] = def
	s.order = append(s.order, name)

	if _, stored := s.values[name]; !stored {
		if err := s.save(); err != nil {
			return err
		}
		return s.load()
	}
	return nil
}

// Get returns the stored value for a declared option, or its default
// when nothing is stored. Reading an undeclared option is an error.
func (s *Store) Get(name string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, declared := s.defaults[name]
	if !declared {
		return nil, fmt.Errorf("option %q: %w", name, ErrUndeclared)
	}
	if v, stored := s.values[name]; stored {
		return v, nil
	}
	return def, nil
}

// Set stores a value for a declared option and persists immediately.
// The file is re-read first, so a concurrent external edit to another
// option is not clobbered; for the option being set, last writer wins.
func (s *Store) Set(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, declared := s.defaults[name]; !declared {
		return fmt.Errorf("option %q: %w", name, ErrUndeclared)
	}

	if err := s.load(); err != nil {
		s.log.Warn("settings reload failed before set, recovering",
			zap.String("path", s.path),
			zap.Error(err))
		if err := s.forceLoad(); err != nil {
			return fmt.Errorf("settings: recover %s: %w", s.path, err)
		}
	}

	s.values[name] = value
	return s.save()
}

// Declared returns the declared option names in declaration order.
func (s *Store) Declared() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// load reads and decodes the backing file into the value map.
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%s: %w", s.path, ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return fmt.Errorf("%s: %w", s.path, ErrMalformed)
	}

	values := make(map[string]any)
	root.ForEach(func(key, value gjson.Result) bool {
		values[key.String()] = value.Value()
		return true
	})
	s.values = values
	return nil
}

// save writes the whole current option set: every declared option at
// its stored value or default, in declaration order, plus any stored
// values picked up from disk for options declared in an earlier run.
func (s *Store) save() error {
	doc := "{}"
	var err error

	written := make(map[string]bool, len(s.order))
	for _, name := range s.order {
		v, stored := s.values[name]
		if !stored {
			v = s.defaults[name]
		}
		if doc, err = sjson.Set(doc, escapePath(name), v); err != nil {
			return fmt.Errorf("settings: encode %q: %w", name, err)
		}
		written[name] = true
	}
	for name, v := range s.values {
		if written[name] {
			continue
		}
		if doc, err = sjson.Set(doc, escapePath(name), v); err != nil {
			return fmt.Errorf("settings: encode %q: %w", name, err)
		}
	}

	if err := os.WriteFile(s.path, pretty.Pretty([]byte(doc)), 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.path, err)
	}
	return nil
}

// forceLoad is the recovery protocol: back up the existing file if
// there is one, write a clean file of declared defaults, and reload.
// An existing backup is never overwritten silently.
func (s *Store) forceLoad() error {
	if _, err := os.Stat(s.path); err == nil {
		backup := s.path + BackupSuffix
		if _, err := os.Stat(backup); err == nil {
			return fmt.Errorf("%s: %w", backup, ErrBackupExists)
		}
		if err := os.Rename(s.path, backup); err != nil {
			return fmt.Errorf("back up corrupt file: %w", err)
		}
		s.log.Warn("backed up corrupt settings file",
			zap.String("path", s.path),
			zap.String("backup", backup))
	}

	s.values = make(map[string]any)
	if err := s.save(); err != nil {
		return err
	}
	return s.load()
}

// escapePath escapes gjson path metacharacters so option names map to
// flat top-level keys.
func escapePath(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '.', '*', '?', '\\', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
