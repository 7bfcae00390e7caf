package micstate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsEmptyState(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "mic_state.json"))
	s, err := f.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if s.TTSPaused || s.Muted || s.Recording {
		t.Fatalf("Load() on missing file = %+v, want zero flags", s)
	}
	if s.Volume != 100 {
		t.Fatalf("Volume = %d, want default 100", s.Volume)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "mic_state.json"))
	want := State{Mode: "push_to_talk", Recording: true, Volume: 80, TTSPaused: true}
	if err := f.Save(want); err != nil {
		t.Fatalf("Save() unexpected error = %v", err)
	}
	got, err := f.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if got != want {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
}

func TestSetTTSPausedPreservesOtherFields(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "mic_state.json"))
	if err := f.Save(State{Mode: "open_mic", Muted: true, Volume: 60}); err != nil {
		t.Fatalf("Save() unexpected error = %v", err)
	}
	if err := f.SetTTSPaused(true); err != nil {
		t.Fatalf("SetTTSPaused() unexpected error = %v", err)
	}
	s, err := f.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error = %v", err)
	}
	if !s.TTSPaused {
		t.Fatalf("TTSPaused = false after SetTTSPaused(true)")
	}
	if s.Mode != "open_mic" || !s.Muted || s.Volume != 60 {
		t.Fatalf("SetTTSPaused() clobbered fields: %+v", s)
	}
}

func TestMutedReadsFlag(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "mic_state.json"))
	if f.Muted() {
		t.Fatalf("Muted() = true for missing file, want false")
	}
	if err := f.Save(State{Muted: true, Volume: 100}); err != nil {
		t.Fatalf("Save() unexpected error = %v", err)
	}
	if !f.Muted() {
		t.Fatalf("Muted() = false after saving muted state")
	}
}

func TestTTSPausedToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mic_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() unexpected error = %v", err)
	}
	f := NewFile(path)
	if f.TTSPaused() {
		t.Fatalf("TTSPaused() = true for corrupt file, want false")
	}
	if _, err := f.Load(); err == nil {
		t.Fatalf("Load() expected error for corrupt file")
	}
}
