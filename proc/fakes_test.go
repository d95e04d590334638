package proc

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

const testWait = 3 * time.Second

// fakePipe stands in for the two processes. Its stream stays open until the
// test finishes it or the engine terminates it.
type fakePipe struct {
	url string
	r   *io.PipeReader
	w   *io.PipeWriter

	once       sync.Once
	done       chan struct{}
	mu         sync.Mutex
	err        error
	terminated atomic.Int32
}

func newFakePipe(url string) *fakePipe {
	r, w := io.Pipe()
	return &fakePipe{url: url, r: r, w: w, done: make(chan struct{})}
}

func (p *fakePipe) Stream() io.Reader { return p.r }

func (p *fakePipe) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePipe) Terminate() {
	p.terminated.Add(1)
	p.finish(nil)
}

// finish ends the stream as if both processes exited with err.
func (p *fakePipe) finish(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		_ = p.w.Close()
		close(p.done)
	})
}

func (p *fakePipe) wasTerminated() bool {
	return p.terminated.Load() > 0
}

type fakeLauncher struct {
	mu       sync.Mutex
	fail     map[string]error
	attempts map[string]int
	started  chan *fakePipe
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		fail:     make(map[string]error),
		attempts: make(map[string]int),
		started:  make(chan *fakePipe, 64),
	}
}

func (l *fakeLauncher) failURL(url string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail[url] = err
}

func (l *fakeLauncher) Start(ctx context.Context, url string) (Pipe, error) {
	l.mu.Lock()
	l.attempts[url]++
	err := l.fail[url]
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p := newFakePipe(url)
	l.started <- p
	return p, nil
}

func (l *fakeLauncher) attemptsFor(url string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts[url]
}

// next returns the next launched pipe or fails the test.
func (l *fakeLauncher) next(t *testing.T) *fakePipe {
	t.Helper()
	select {
	case p := <-l.started:
		return p
	case <-time.After(testWait):
		t.Fatal("no pipe was started")
		return nil
	}
}

// fakeSink drains the stream like an output that plays in real time would.
type fakeSink struct {
	plays   atomic.Int32
	closed  atomic.Int32
	playErr atomic.Pointer[error]
}

func (s *fakeSink) Play(ctx context.Context, pcm io.Reader) error {
	s.plays.Add(1)
	if errp := s.playErr.Load(); errp != nil {
		return *errp
	}

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, pcm)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (s *fakeSink) Close(ctx context.Context) {
	s.closed.Add(1)
}

func (s *fakeSink) failWith(err error) {
	s.playErr.Store(&err)
}

func sinkFactory(s *fakeSink) SinkFactory {
	return func(ctx context.Context) (Sink, error) {
		return s, nil
	}
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Notify(guildID snowflake.ID, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *fakeNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type fakeHistory struct {
	mu   sync.Mutex
	urls []string
}

func (h *fakeHistory) RecordPlay(ctx context.Context, guildID snowflake.ID, url, title string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.urls = append(h.urls, url)
	return nil
}

func (h *fakeHistory) played() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.urls...)
}

type fakeHydrator struct {
	calls atomic.Int32
	err   error
}

func (h *fakeHydrator) Hydrate(ctx context.Context, t *Track) error {
	h.calls.Add(1)
	if h.err != nil {
		return h.err
	}
	t.Hydrate(&TrackMetadata{Title: Known(t.Title() + " (hydrated)"), Duration: Known(time.Minute)})
	return nil
}

type fakeSearcher struct {
	results []SearchResult
	err     error
}

func (s *fakeSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	return s.results, s.err
}

// hydratedTrack builds a track the engine will not try to resolve.
func hydratedTrack(title string) *Track {
	t := NewTrack(title, "https://example.com/"+title)
	t.Hydrate(&TrackMetadata{Duration: Known(3 * time.Minute)})
	return t
}
