package proc

import (
	"context"
	"errors"
	"time"

	"github.com/leeineian/vibestream/sys"
)

const (
	DefaultSettleDelay = 300 * time.Millisecond

	// pipeGrace bounds how long the engine waits for the processes to exit
	// once the sink has stopped reading.
	pipeGrace        = 5 * time.Second
	sinkCloseTimeout = 5 * time.Second
	historyTimeout   = 5 * time.Second
)

// PipelineOutcome is how one track's playback ended.
type PipelineOutcome struct {
	// Reason is nil when the track completed or was interrupted on purpose.
	Reason error
}

func Completed() PipelineOutcome {
	return PipelineOutcome{}
}

func Errored(err error) PipelineOutcome {
	return PipelineOutcome{Reason: err}
}

func (o PipelineOutcome) IsCompleted() bool {
	return o.Reason == nil
}

// drive is the session's driver loop. Each iteration plays the front track
// (Starting, Playing), advances the queue (Advancing) and waits out the
// settle delay before the next one. It returns once the session is
// destroyed.
func (p *Player) drive(s *Session) {
	defer p.wg.Done()

	for {
		t, ctx, ok := p.begin(s)
		if !ok {
			return
		}

		outcome := p.playTrack(ctx, s, t)
		if !outcome.IsCompleted() {
			sys.LogVoiceWarn(MsgTrackFailed, t.ShortID(), t.Title(), s.ID, outcome.Reason)
		}

		if !p.advance(s, t, outcome) {
			return
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(p.settle):
		}
	}
}

// begin moves the session to Starting with the front track.
func (p *Player) begin(s *Session) (*Track, context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed || len(s.tracks) == 0 {
		s.playing = false
		if !s.destroyed {
			s.state = StateIdle
		}
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.trackCancel = cancel
	s.skipping = false
	s.state = StateStarting
	return s.tracks[0], ctx, true
}

func (p *Player) playTrack(ctx context.Context, s *Session, t *Track) PipelineOutcome {
	sys.LogVoice(MsgTrackStarting, t.ShortID(), t.Title(), s.ID)

	if p.hydrator != nil && t.NeedsHydration() {
		if err := p.hydrator.Hydrate(ctx, t); err != nil {
			if ctx.Err() != nil {
				return Completed()
			}
			return Errored(err)
		}
	}

	pipe, err := p.launcher.Start(ctx, t.URL())
	if err != nil {
		if ctx.Err() != nil {
			return Completed()
		}
		return Errored(err)
	}

	s.mu.Lock()
	if s.destroyed || ctx.Err() != nil {
		s.mu.Unlock()
		pipe.Terminate()
		_ = pipe.Wait()
		return Completed()
	}
	s.pipe = pipe
	s.state = StatePlaying
	sink := s.sink
	s.mu.Unlock()

	sys.LogVoice(MsgTrackPlaying, t.ShortID(), t.Title(), s.ID)
	p.recordPlay(s, t)

	playErr := sink.Play(ctx, pipe.Stream())
	if playErr != nil || ctx.Err() != nil {
		pipe.Terminate()
	}
	waitErr := awaitPipe(pipe, pipeGrace)
	pipe.Terminate()

	s.mu.Lock()
	if s.pipe == pipe {
		s.pipe = nil
	}
	s.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		sys.LogVoice(MsgTrackInterrupted, t.ShortID(), t.Title(), s.ID)
		return Completed()
	case playErr != nil:
		return Errored(playErr)
	case waitErr != nil:
		return Errored(waitErr)
	}
	sys.LogVoice(MsgTrackFinished, t.ShortID(), t.Title(), s.ID)
	return Completed()
}

// awaitPipe waits for the pipe to exit, terminating it after grace.
func awaitPipe(pipe Pipe, grace time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- pipe.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		pipe.Terminate()
		return <-done
	}
}

// advance pops t from the front and decides whether the loop continues.
// An empty queue or a lost output connection destroys the session.
func (p *Player) advance(s *Session, t *Track, outcome PipelineOutcome) bool {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return false
	}

	s.state = StateAdvancing
	s.pipe = nil
	s.skipping = false
	if s.trackCancel != nil {
		s.trackCancel()
		s.trackCancel = nil
	}

	if len(s.tracks) > 0 && s.tracks[0] == t {
		s.tracks[0] = nil
		s.tracks = s.tracks[1:]
	} else {
		sys.LogVoiceWarn(MsgTrackUnexpected, t.ShortID(), t.Title(), s.ID)
	}

	var sink Sink
	switch {
	case errors.Is(outcome.Reason, ErrSinkClosed):
		sys.LogVoiceWarn(MsgSinkLost, s.ID, outcome.Reason)
		sink = s.destroyLocked(p.registry, "output lost")
	case len(s.tracks) == 0:
		sink = s.destroyLocked(p.registry, MsgQueueEnded)
	}
	alive := !s.destroyed
	s.mu.Unlock()

	closeSink(sink)
	if !outcome.IsCompleted() && alive && p.notifier != nil {
		p.notifier.Notify(s.ID, MsgFailedNextTrack)
	}
	return alive
}

func (p *Player) recordPlay(s *Session, t *Track) {
	if p.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := p.history.RecordPlay(ctx, s.ID, t.URL(), t.Title()); err != nil {
		sys.LogWarn(MsgHistoryFailed, s.ID, err)
	}
}

func closeSink(sink Sink) {
	if sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkCloseTimeout)
	defer cancel()
	sink.Close(ctx)
}
