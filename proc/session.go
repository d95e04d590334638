package proc

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/vibestream/sys"
)

type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StateStarting
	StatePlaying
	StateAdvancing
	StateDestroyed
)

func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateAdvancing:
		return "advancing"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Session is the queue and playback state of one guild. Every field below mu
// is guarded by it.
type Session struct {
	ID snowflake.ID

	// ctx is cancelled when the session is destroyed.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sink     Sink
	pipe     Pipe
	tracks   []*Track
	playing  bool
	state    PlaybackState
	skipping bool
	// trackCancel aborts the track currently driven by the engine.
	trackCancel context.CancelFunc
	destroyed   bool
	reason      string
}

func newSession(id snowflake.ID) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{ID: id, ctx: ctx, cancel: cancel, state: StateIdle}
}

func (s *Session) State() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Track(nil), s.tracks...)
}

// Done is closed once the session is destroyed.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// destroyLocked marks the session terminal, stops whatever is playing and
// removes it from the registry. The caller holds s.mu and must close the
// returned sink after unlocking.
func (s *Session) destroyLocked(reg *Registry, reason string) Sink {
	if s.destroyed {
		return nil
	}
	s.destroyed = true
	s.reason = reason
	s.state = StateDestroyed
	s.tracks = nil
	s.playing = false

	if s.trackCancel != nil {
		s.trackCancel()
		s.trackCancel = nil
	}
	if s.pipe != nil {
		s.pipe.Terminate()
		s.pipe = nil
	}
	s.cancel()
	reg.remove(s.ID, s)

	sink := s.sink
	s.sink = nil
	sys.LogVoice(MsgSessionDestroyed, s.ID, reason)
	return sink
}

// Registry maps guild ids to live sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[snowflake.ID]*Session)}
}

func (r *Registry) Get(id snowflake.ID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete destroys the session registered under id and closes its output
// with ctx. It reports false when there was no live session.
func (r *Registry) Delete(ctx context.Context, id snowflake.ID, reason string) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false
	}
	sink := s.destroyLocked(r, reason)
	s.mu.Unlock()

	if sink != nil {
		sink.Close(ctx)
	}
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns the sessions registered right now.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) getOrCreate(id snowflake.ID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := newSession(id)
	r.sessions[id] = s
	return s, true
}

// remove deletes id only while it still maps to s, so a stale session never
// evicts its successor.
func (r *Registry) remove(id snowflake.ID, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
	}
}
