package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"peekraw/internal/logging"
)

// FileName is the settings file created inside the config directory.
const FileName = "settings.yaml"

const keyLastFolder = "last_folder"

// Store holds user settings that outlive a single session. It is safe for
// concurrent use.
type Store struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// Load reads dir/settings.yaml. A missing file yields empty settings; the
// file is created on the first Save.
func Load(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("settings directory is required")
	}

	path := filepath.Join(dir, FileName)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault(keyLastFolder, "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
		}
		logging.Debug("No settings file at %s, using defaults", path)
	}

	return &Store{v: v, path: path}, nil
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes the settings file, creating its directory if needed.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write settings %s: %w", s.path, err)
	}
	return nil
}

// LastFolder returns the folder most recently opened, or "".
func (s *Store) LastFolder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetString(keyLastFolder)
}

// SetLastFolder records the folder most recently opened. Call Save to
// persist it.
func (s *Store) SetLastFolder(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(keyLastFolder, path)
}
