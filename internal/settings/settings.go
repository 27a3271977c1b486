// Package settings persists bridge preferences as a JSON file.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

// Key names a stored boolean setting.
type Key string

const (
	KeyCrashReporting        Key = "crashReporting"
	KeyVerboseLogging        Key = "verboseLogging"
	KeyForceUseTMAPI         Key = "forceUseTMAPI"
	KeyDisableSafeguard      Key = "disableSafeguard"
	KeyUnfilteredProfileList Key = "unfilteredProfileList"
	KeyIgnoreTLSCertificate  Key = "ignoreTLSCertificate"
	KeyNotificationDownload  Key = "notificationDownload"
	KeyNotificationDelete    Key = "notificationDelete"
	KeyNotificationSwitch    Key = "notificationSwitch"
)

// ErrUnknownKey is returned for keys outside the fixed set.
var ErrUnknownKey = errors.New("unknown settings key")

// Settings holds user preferences that persist across restarts.
type Settings struct {
	CrashReporting        bool `json:"crashReporting"`
	VerboseLogging        bool `json:"verboseLogging"`
	ForceUseTMAPI         bool `json:"forceUseTMAPI"`
	DisableSafeguard      bool `json:"disableSafeguard"`
	UnfilteredProfileList bool `json:"unfilteredProfileList"`
	IgnoreTLSCertificate  bool `json:"ignoreTLSCertificate"`
	NotificationDownload  bool `json:"notificationDownload"`
	NotificationDelete    bool `json:"notificationDelete"`
	NotificationSwitch    bool `json:"notificationSwitch"`
}

// DefaultSettings returns the default settings.
func DefaultSettings() *Settings {
	return &Settings{
		CrashReporting:       false, // opt-in
		NotificationDownload: true,
		NotificationDelete:   true,
	}
}

func (s *Settings) field(key Key) *bool {
	switch key {
	case KeyCrashReporting:
		return &s.CrashReporting
	case KeyVerboseLogging:
		return &s.VerboseLogging
	case KeyForceUseTMAPI:
		return &s.ForceUseTMAPI
	case KeyDisableSafeguard:
		return &s.DisableSafeguard
	case KeyUnfilteredProfileList:
		return &s.UnfilteredProfileList
	case KeyIgnoreTLSCertificate:
		return &s.IgnoreTLSCertificate
	case KeyNotificationDownload:
		return &s.NotificationDownload
	case KeyNotificationDelete:
		return &s.NotificationDelete
	case KeyNotificationSwitch:
		return &s.NotificationSwitch
	}
	return nil
}

// DefaultPath returns the settings file location under the user config dir.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "lpa-bridge", "settings.json"), nil
}

// Store is a file-backed settings store safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	path    string
	current *Settings
}

// NewStore returns a store for path holding default settings until Load.
// An empty path keeps settings in memory only.
func NewStore(path string) *Store {
	return &Store{path: path, current: DefaultSettings()}
}

// Path returns the backing file, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Load reads settings from disk. A missing file leaves the defaults in place;
// keys absent from the file keep their default values.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = DefaultSettings()
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	loaded := DefaultSettings()
	if err := json.Unmarshal(data, loaded); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.current = loaded
	return nil
}

// save writes the current settings. Caller holds s.mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.current
}

// Bool returns the stored value of key.
func (s *Store) Bool(key Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := s.current.field(key)
	if f == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return *f, nil
}

// SetBool updates key and persists the settings. The in-memory value is
// rolled back if the write fails.
func (s *Store) SetBool(key Key, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.current.field(key)
	if f == nil {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	old := *f
	*f = value
	if err := s.save(); err != nil {
		*f = old
		return err
	}
	return nil
}

// IsCrashReportingEnabled returns whether crash reporting is enabled.
func (s *Store) IsCrashReportingEnabled() bool {
	return s.Get().CrashReporting
}
