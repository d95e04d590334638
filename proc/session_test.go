package proc

import (
	"context"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry()

	s, created := r.getOrCreate(1)
	require.True(t, created)
	assert.Equal(t, StateIdle, s.State())

	again, created := r.getOrCreate(1)
	assert.False(t, created)
	assert.Same(t, s, again)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RemoveKeepsSuccessor(t *testing.T) {
	r := NewRegistry()
	old, _ := r.getOrCreate(1)
	require.True(t, r.Delete(context.Background(), 1, MsgStopped))
	successor, _ := r.getOrCreate(1)

	r.remove(1, old)
	got, ok := r.Get(1)
	require.True(t, ok)
	assert.Same(t, successor, got)

	r.remove(1, successor)
	_, ok = r.Get(1)
	assert.False(t, ok)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	for _, id := range []snowflake.ID{1, 2, 3} {
		r.getOrCreate(id)
	}

	snap := r.Snapshot()
	assert.Len(t, snap, 3)
	r.Delete(context.Background(), 2, MsgStopped)
	assert.Len(t, snap, 3)
	assert.Equal(t, 2, r.Len())
}

func TestSession_DestroyLocked(t *testing.T) {
	r := NewRegistry()
	s, _ := r.getOrCreate(7)
	sink := &fakeSink{}
	pipe := newFakePipe("https://example.com/a")

	s.mu.Lock()
	s.sink = sink
	s.pipe = pipe
	s.tracks = []*Track{hydratedTrack("A"), hydratedTrack("B")}
	s.playing = true
	got := s.destroyLocked(r, MsgStopped)
	second := s.destroyLocked(r, MsgStopped)
	s.mu.Unlock()

	assert.Same(t, sink, got)
	assert.Nil(t, second)
	assert.True(t, pipe.wasTerminated())
	assert.Empty(t, s.Tracks())
	assert.Equal(t, StateDestroyed, s.State())
	assert.Equal(t, 0, r.Len())

	select {
	case <-s.Done():
	default:
		t.Fatal("session context not cancelled")
	}
}

func TestRegistry_DeleteDestroysSession(t *testing.T) {
	r := NewRegistry()
	s, _ := r.getOrCreate(9)
	sink := &fakeSink{}
	pipe := newFakePipe("https://example.com/a")

	s.mu.Lock()
	s.sink = sink
	s.pipe = pipe
	s.tracks = []*Track{hydratedTrack("A")}
	s.mu.Unlock()

	require.True(t, r.Delete(context.Background(), 9, MsgStopped))
	assert.False(t, r.Delete(context.Background(), 9, MsgStopped))

	assert.True(t, pipe.wasTerminated())
	assert.Equal(t, int32(1), sink.closed.Load())
	assert.Equal(t, StateDestroyed, s.State())
	assert.Equal(t, 0, r.Len())
	select {
	case <-s.Done():
	default:
		t.Fatal("session context not cancelled")
	}
}
