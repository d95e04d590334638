package proc

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/vibestream/sys"
)

// Notifier delivers short status messages to whoever started playback in a
// guild.
type Notifier interface {
	Notify(guildID snowflake.ID, msg string)
}

// History records tracks that reached playback.
type History interface {
	RecordPlay(ctx context.Context, guildID snowflake.ID, url, title string) error
}

type PlayerConfig struct {
	Registry    *Registry
	Launcher    Launcher
	Hydrator    Hydrator
	SettleDelay time.Duration
	Notifier    Notifier
	History     History
	// Rand drives Shuffle; a random source is used when nil.
	Rand *rand.Rand
}

// Player owns the sessions of every guild and implements the queue
// operations. One driver goroutine runs per active session.
type Player struct {
	registry *Registry
	launcher Launcher
	hydrator Hydrator
	settle   time.Duration
	notifier Notifier
	history  History

	randMu sync.Mutex
	rng    *rand.Rand

	wg sync.WaitGroup
}

func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Player{
		registry: cfg.Registry,
		launcher: cfg.Launcher,
		hydrator: cfg.Hydrator,
		settle:   cfg.SettleDelay,
		notifier: cfg.Notifier,
		history:  cfg.History,
		rng:      cfg.Rand,
	}
}

func (p *Player) Registry() *Registry {
	return p.registry
}

type EnqueueResult struct {
	// Started is true when this call started playback.
	Started bool
	// Position is the queue index of the first added track.
	Position int
	Total    int
}

// Enqueue appends tracks to the guild's queue, creating the session and
// acquiring its output on first use. Playback starts when nothing is
// playing yet.
func (p *Player) Enqueue(ctx context.Context, id snowflake.ID, factory SinkFactory, tracks ...*Track) (EnqueueResult, error) {
	if len(tracks) == 0 {
		return EnqueueResult{}, ErrNoTracks
	}

	for {
		s, created := p.registry.getOrCreate(id)
		if created {
			sys.LogVoice(MsgSessionCreated, id)
		}

		s.mu.Lock()
		if s.destroyed {
			// Lost a race with stop; the registry no longer holds s.
			s.mu.Unlock()
			continue
		}

		if s.sink == nil {
			sink, err := acquireSink(ctx, factory)
			if err != nil {
				sys.LogVoiceWarn(MsgSinkAcquireFailed, id, err)
				stale := s.destroyLocked(p.registry, MsgNotListenable)
				s.mu.Unlock()
				closeSink(stale)
				return EnqueueResult{}, fmt.Errorf("%w: %w", ErrNotListenable, err)
			}
			s.sink = sink
		}

		pos := len(s.tracks)
		s.tracks = append(s.tracks, tracks...)
		res := EnqueueResult{Position: pos, Total: len(s.tracks)}

		if !s.playing {
			s.playing = true
			res.Started = true
			p.wg.Add(1)
			go p.drive(s)
		}
		s.mu.Unlock()
		return res, nil
	}
}

func acquireSink(ctx context.Context, factory SinkFactory) (Sink, error) {
	if factory == nil {
		return nil, ErrSinkClosed
	}
	sink, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, ErrSinkClosed
	}
	return sink, nil
}

type SkipResult struct {
	// Ended is true when nothing was left to advance to and the session was
	// destroyed.
	Ended      bool
	NowPlaying string
}

// Skip abandons the current track. With nothing behind it the session ends.
func (p *Player) Skip(id snowflake.ID) (SkipResult, error) {
	s, ok := p.registry.Get(id)
	if !ok {
		return SkipResult{}, ErrNothingPlaying
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return SkipResult{}, ErrNothingPlaying
	}

	// A track already being skipped is still at the front until the driver
	// advances past it.
	pending := 0
	if s.skipping {
		pending = 1
	}
	if len(s.tracks)-pending <= 1 {
		sink := s.destroyLocked(p.registry, MsgQueueEnded)
		s.mu.Unlock()
		closeSink(sink)
		return SkipResult{Ended: true}, nil
	}

	if s.trackCancel != nil && !s.skipping {
		s.skipping = true
		if s.pipe != nil {
			s.pipe.Terminate()
		}
		s.trackCancel()
		pending = 1
	} else {
		s.tracks = append(s.tracks[:pending], s.tracks[pending+1:]...)
	}
	next := s.tracks[pending].Title()
	s.mu.Unlock()

	return SkipResult{NowPlaying: next}, nil
}

// Shuffle permutes every track after the current one.
func (p *Player) Shuffle(id snowflake.ID) error {
	s, ok := p.registry.Get(id)
	if !ok {
		return ErrNothingPlaying
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrNothingPlaying
	}
	if len(s.tracks) < 3 {
		return ErrNotEnoughTracks
	}

	p.randMu.Lock()
	shuffleTail(s.tracks, p.rng)
	p.randMu.Unlock()
	return nil
}

// shuffleTail applies Fisher-Yates to tracks[1:], leaving tracks[0] in place.
func shuffleTail(tracks []*Track, rng *rand.Rand) {
	if len(tracks) < 3 {
		return
	}
	tail := tracks[1:]
	for i := len(tail) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		tail[i], tail[j] = tail[j], tail[i]
	}
}

// Stop clears the queue, terminates playback and releases the output.
func (p *Player) Stop(ctx context.Context, id snowflake.ID) error {
	if !p.registry.Delete(ctx, id, MsgStopped) {
		return ErrNothingPlaying
	}
	return nil
}

// Queue lists track titles, the playing one first.
func (p *Player) Queue(id snowflake.ID) ([]string, error) {
	s, ok := p.registry.Get(id)
	if !ok {
		return nil, ErrNothingPlaying
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || len(s.tracks) == 0 {
		return nil, ErrNothingPlaying
	}
	titles := make([]string, len(s.tracks))
	for i, t := range s.tracks {
		titles[i] = t.Title()
	}
	return titles, nil
}

// NowPlaying returns the front track.
func (p *Player) NowPlaying(id snowflake.ID) (*Track, bool) {
	s, ok := p.registry.Get(id)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || len(s.tracks) == 0 {
		return nil, false
	}
	return s.tracks[0], true
}

// State reports the playback state of a guild; false when it has no session.
func (p *Player) State(id snowflake.ID) (PlaybackState, bool) {
	s, ok := p.registry.Get(id)
	if !ok {
		return StateDestroyed, false
	}
	return s.State(), true
}

// Shutdown stops every session and waits for their drivers to exit.
func (p *Player) Shutdown(ctx context.Context) error {
	sessions := p.registry.Snapshot()
	if len(sessions) > 0 {
		sys.LogVoice(MsgShutdownSessions, len(sessions))
	}
	for _, s := range sessions {
		_ = p.Stop(ctx, s.ID)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
