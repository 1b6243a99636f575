package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/linkdrive/pkg/errors"
)

// Settings are the tunables layered from built-in defaults, the user's
// linkdrive.toml and LINKDRIVE_* environment variables, in that order.
type Settings struct {
	VolumesRoot         string   `koanf:"volumes_root" toml:"volumes_root"`
	CopyTiers           []string `koanf:"copy_tiers" toml:"copy_tiers"`
	PollIntervalSeconds int      `koanf:"poll_interval_seconds" toml:"poll_interval_seconds"`
	BackstopMinutes     int      `koanf:"backstop_minutes" toml:"backstop_minutes"`
}

// PollInterval returns the poll interval as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// BackstopInterval returns the backstop interval as a duration.
func (s Settings) BackstopInterval() time.Duration {
	return time.Duration(s.BackstopMinutes) * time.Minute
}

// SettingsFilePath returns the user settings file location.
func SettingsFilePath() string {
	return filepath.Join(xdg.ConfigHome, "linkdrive", "linkdrive.toml")
}

// LoadSettings builds the effective settings: defaults, then the settings
// file when present, then environment overrides.
func LoadSettings() (Settings, error) {
	return loadSettingsFrom(SettingsFilePath())
}

func loadSettingsFrom(path string) (Settings, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultSettings}, toml.Parser()); err != nil {
		return Settings{}, errors.Wrap(err, errors.ErrConfigLoad, "failed to load built-in defaults")
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return Settings{}, errors.Wrapf(err, errors.ErrConfigLoad, "failed to load settings from %s", path)
		}
	}

	// LINKDRIVE_VOLUMES_ROOT=/mnt overrides volumes_root, and so on.
	if err := k.Load(env.Provider("LINKDRIVE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "LINKDRIVE_"))
	}), nil); err != nil {
		return Settings{}, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment overrides")
	}

	var settings Settings
	if err := k.Unmarshal("", &settings); err != nil {
		return Settings{}, errors.Wrap(err, errors.ErrConfigLoad, "failed to decode settings")
	}
	return settings, nil
}
