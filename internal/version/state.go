package version

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrz1836/sigil-bridge/internal/fileutil"
)

// StateFileName is the install record kept in the bridge home directory.
const StateFileName = "install.json"

// Transition describes how the running version relates to the recorded one.
type Transition int

// Transitions reported by Detect.
const (
	TransitionNone Transition = iota
	TransitionInstall
	TransitionUpdate
)

// String returns the transition name.
func (t Transition) String() string {
	switch t {
	case TransitionInstall:
		return "install"
	case TransitionUpdate:
		return "update"
	default:
		return "none"
	}
}

// InstallState records the version that last ran from a home directory.
type InstallState struct {
	Version     string    `json:"version"`
	InstalledAt time.Time `json:"installed_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// StatePath returns the install record path for home.
func StatePath(home string) string {
	return filepath.Join(home, StateFileName)
}

// LoadState reads the install record. A missing file returns nil and no error.
func LoadState(path string) (*InstallState, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is derived from the bridge home directory
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil //nolint:nilnil // Absent record means first run
	}
	if err != nil {
		return nil, fmt.Errorf("reading install state: %w", err)
	}

	var st InstallState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding install state: %w", err)
	}
	return &st, nil
}

// Detect compares the recorded state with the running version. Any version
// change, including a downgrade, counts as an update.
func Detect(prev *InstallState, current string) Transition {
	if prev == nil {
		return TransitionInstall
	}
	if NormalizeVersion(prev.Version) == NormalizeVersion(current) {
		return TransitionNone
	}
	if CompareVersions(prev.Version, current) == 0 {
		return TransitionNone
	}
	return TransitionUpdate
}

// Record detects the transition for current, persists the new state and
// returns the transition together with the previously recorded version.
func Record(path, current string, now time.Time) (Transition, string, error) {
	prev, err := LoadState(path)
	if err != nil {
		return TransitionNone, "", err
	}

	t := Detect(prev, current)
	previous := ""
	next := &InstallState{Version: current, InstalledAt: now}
	if prev != nil {
		previous = prev.Version
		next.InstalledAt = prev.InstalledAt
		next.UpdatedAt = prev.UpdatedAt
	}
	if t == TransitionNone {
		return t, previous, nil
	}
	if t == TransitionUpdate {
		next.UpdatedAt = now
	}

	if err := fileutil.WriteJSONAtomic(path, next, 0o600); err != nil {
		return TransitionNone, previous, fmt.Errorf("writing install state: %w", err)
	}
	return t, previous, nil
}
