package config

import (
	encjson "encoding/json"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/linkdrive/pkg/errors"
	"github.com/arthur-debert/linkdrive/pkg/types"
)

// State is the persisted configuration blob: which drive is managed,
// which links it backs, and whether initial migration has completed.
type State struct {
	DriveID     string              `json:"drive_id" koanf:"drive_id"`
	DriveName   string              `json:"drive_name" koanf:"drive_name"`
	DrivePath   string              `json:"drive_path" koanf:"drive_path"`
	Initialized bool                `json:"initialized" koanf:"initialized"`
	Links       []types.ManagedLink `json:"links" koanf:"links"`
}

// StateFilePath returns the state blob location.
func StateFilePath() string {
	return filepath.Join(xdg.ConfigHome, "linkdrive", "state.json")
}

// LoadState reads the state blob. A missing file yields a zero State and
// no error; first run is not an error condition.
func LoadState() (State, error) {
	return loadStateFrom(StateFilePath())
}

func loadStateFrom(path string) (State, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return State{}, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return State{}, errors.Wrapf(err, errors.ErrConfigLoad, "failed to load state from %s", path)
	}

	var state State
	if err := k.Unmarshal("", &state); err != nil {
		return State{}, errors.Wrapf(err, errors.ErrConfigLoad, "failed to decode state from %s", path)
	}
	return state, nil
}

// SaveState writes the state blob atomically: the new content lands in a
// temp file that is renamed over the old one, so a crash mid-save never
// leaves a truncated blob.
func SaveState(state State) error {
	return saveStateTo(StateFilePath(), state)
}

func saveStateTo(path string, state State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrConfigSave, "failed to create config directory %s", dir)
	}

	data, err := encjson.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigSave, "failed to encode state")
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigSave, "failed to create temp state file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrConfigSave, "failed to write state")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrConfigSave, "failed to close temp state file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, errors.ErrConfigSave, "failed to replace %s", path)
	}
	return nil
}
