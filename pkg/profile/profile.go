// Package profile persists named backup configurations in a human-editable
// TOML file under the user's XDG config directory:
//
//	[profiles.photos]
//	source = "/home/me/Pictures"
//	destination = "/mnt/backup"
//	check_content = false
//	exclude = ["*.tmp", "cache/"]
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/paulschiretz/recall/pkg/util"
	"github.com/spf13/afero"
)

// ErrNotFound is returned by Get and Delete for unknown profile names.
var ErrNotFound = errors.New("profile not found")

// Profile is one named backup configuration.
type Profile struct {
	Source          string   `toml:"source"`
	Destination     string   `toml:"destination"`
	CheckContent    bool     `toml:"check_content"`
	Exclude         []string `toml:"exclude"`
	Workers         int      `toml:"workers,omitempty"`
	PreBackupHooks  []string `toml:"pre_backup_hooks,omitempty"`
	PostBackupHooks []string `toml:"post_backup_hooks,omitempty"`
}

// Store is the content of the profile file.
type Store struct {
	Profiles map[string]Profile `toml:"profiles"`
}

// DefaultPath returns $XDG_CONFIG_HOME/recall/config.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "recall", "config.toml")
}

// Load reads the store at path. A missing file yields an empty store.
func Load(fs afero.Fs, path string) (*Store, error) {
	s := &Store{Profiles: make(map[string]Profile)}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("could not read profile store %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), s); err != nil {
		return nil, fmt.Errorf("could not parse profile store %s: %w", path, err)
	}
	if s.Profiles == nil {
		s.Profiles = make(map[string]Profile)
	}
	return s, nil
}

// Save writes the store to path, creating its directory.
func (s *Store) Save(fs afero.Fs, path string) error {
	if err := fs.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create config directory for %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("could not encode profile store: %w", err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write profile store %s: %w", path, err)
	}
	return nil
}

// Get returns the named profile.
func (s *Store) Get(name string) (Profile, error) {
	p, ok := s.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Put adds or replaces a profile after validating it.
func (s *Store) Put(name string, p Profile) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("profile name must not be empty")
	}
	if p.Source == "" {
		return fmt.Errorf("profile %q: source must not be empty", name)
	}
	if p.Destination == "" {
		return fmt.Errorf("profile %q: destination must not be empty", name)
	}
	if p.Workers < 0 {
		return fmt.Errorf("profile %q: workers must not be negative", name)
	}
	p.Exclude = util.MergeAndDeduplicate(p.Exclude)
	if s.Profiles == nil {
		s.Profiles = make(map[string]Profile)
	}
	s.Profiles[name] = p
	return nil
}

// Delete removes the named profile.
func (s *Store) Delete(name string) error {
	if _, ok := s.Profiles[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(s.Profiles, name)
	return nil
}

// Names returns the profile names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.Profiles))
	for n := range s.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
