// Package micstate persists microphone and playback control state to a
// small JSON file shared with external tooling (hotkey daemons, tray apps).
package micstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// State is the on-disk control surface. External tools flip these fields;
// the speech loop polls them.
type State struct {
	Mode      string `json:"mode"`
	Recording bool   `json:"recording"`
	Muted     bool   `json:"muted"`
	Volume    int    `json:"volume"`
	// TTSPaused asks in-flight playback to stop at the next chunk boundary.
	TTSPaused bool `json:"tts_paused"`
}

type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

// Load reads the current state. A missing file is an empty state, not an
// error; a corrupt file is surfaced so the caller can decide.
func (f *File) Load() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked()
}

func (f *File) loadLocked() (State, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{Volume: 100}, nil
		}
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return State{}, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return s, nil
}

// Save writes the state atomically (temp file plus rename) so a concurrent
// reader never sees a partial write.
func (f *File) Save(s State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveLocked(s)
}

func (f *File) saveLocked(s State) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// SetTTSPaused updates only the pause flag, preserving whatever the other
// fields currently hold.
func (f *File) SetTTSPaused(paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.loadLocked()
	if err != nil {
		return err
	}
	s.TTSPaused = paused
	return f.saveLocked(s)
}

// TTSPaused is the poll used inside playback loops. Read errors report
// not-paused; a broken state file must never silence the assistant.
func (f *File) TTSPaused() bool {
	s, err := f.Load()
	if err != nil {
		return false
	}
	return s.TTSPaused
}

// Muted is the poll used before opening the microphone. Read errors report
// not-muted, same tolerance as TTSPaused.
func (f *File) Muted() bool {
	s, err := f.Load()
	if err != nil {
		return false
	}
	return s.Muted
}
