package speech

import "sync"

// Availability is the tri-state streaming health flag. It starts unknown,
// flips to available on the first successful streamed utterance and to
// unavailable when streaming fails. It never flips back within a process
// lifetime; a restart re-probes.
type Availability int

const (
	AvailabilityUnknown Availability = iota
	AvailabilityAvailable
	AvailabilityUnavailable
)

func (a Availability) String() string {
	switch a {
	case AvailabilityAvailable:
		return "available"
	case AvailabilityUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent copy of the mutable voice state.
type Snapshot struct {
	Streaming Availability `json:"-"`
	// StreamingState is the string form carried on the wire.
	StreamingState string `json:"streaming"`
	Disabled       bool   `json:"voice_mode_disabled"`
	Voice          string `json:"voice"`
}

// State holds the mutable flags shared by the speech service and its
// control surfaces. Subscribers receive a snapshot after every change.
type State struct {
	mu        sync.Mutex
	streaming Availability
	disabled  bool
	voice     string
	subs      []chan Snapshot
}

func NewState(voice string) *State {
	return &State{voice: voice}
}

func (s *State) Streaming() Availability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *State) SetStreaming(a Availability) {
	s.mu.Lock()
	changed := s.streaming != a
	s.streaming = a
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *State) Disabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// Disable turns voice mode off for the rest of the process lifetime.
func (s *State) Disable() {
	s.mu.Lock()
	changed := !s.disabled
	s.disabled = true
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Enable re-arms voice mode, typically from the control panel after the
// operator fixed their audio setup.
func (s *State) Enable() {
	s.mu.Lock()
	changed := s.disabled
	s.disabled = false
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *State) Voice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

func (s *State) SetVoice(voice string) {
	s.mu.Lock()
	changed := s.voice != voice
	s.voice = voice
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Streaming:      s.streaming,
		StreamingState: s.streaming.String(),
		Disabled:       s.disabled,
		Voice:          s.voice,
	}
}

// Subscribe registers a change feed. Sends never block; a slow consumer
// misses intermediate snapshots, not the latest state, since it can always
// call Snapshot.
func (s *State) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 8)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *State) notify() {
	snap := s.Snapshot()
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
