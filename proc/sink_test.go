package proc

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameProvider_DrainsWithSilence(t *testing.T) {
	p := newFrameProvider(context.Background())
	require.NoError(t, p.pushAll([][]byte{{1}, {2}}))
	require.NoError(t, p.push(nil))

	f, err := p.ProvideOpusFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, f)
	f, err = p.ProvideOpusFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, f)

	for i := range silenceFrames {
		f, err = p.ProvideOpusFrame()
		require.NoError(t, err, "silence frame %d", i)
		assert.Equal(t, OpusSilence, f)
	}

	_, err = p.ProvideOpusFrame()
	assert.ErrorIs(t, err, io.EOF)
	select {
	case <-p.drained:
	default:
		t.Fatal("provider not drained")
	}
}

func TestFrameProvider_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newFrameProvider(ctx)
	cancel()

	_, err := p.ProvideOpusFrame()
	assert.ErrorIs(t, err, io.EOF)
	<-p.drained
}

func TestFrameProvider_PushAfterClose(t *testing.T) {
	p := newFrameProvider(context.Background())
	for range frameBuffer {
		require.NoError(t, p.push([]byte{0}))
	}
	p.Close()
	p.Close()

	assert.ErrorIs(t, p.push([]byte{1}), ErrSinkClosed)
}

func TestFrameProvider_SkipsEmptyPackets(t *testing.T) {
	p := newFrameProvider(context.Background())
	require.NoError(t, p.pushAll([][]byte{{1}, {}, nil, {2}}))
	assert.Len(t, p.frames, 2)
}

func TestFrameProvider_SilenceWhenStarved(t *testing.T) {
	p := newFrameProvider(context.Background())

	f, err := p.ProvideOpusFrame()
	require.NoError(t, err)
	assert.Equal(t, OpusSilence, f)
	assert.False(t, p.draining)
}

func TestVoiceSink_ClosedRejectsPlayback(t *testing.T) {
	v := &VoiceSink{closed: true}
	v.Close(context.Background())

	err := v.Play(context.Background(), bytes.NewReader(make([]byte, PCMFrameBytes)))

	var sinkErr *SinkError
	require.ErrorAs(t, err, &sinkErr)
	assert.ErrorIs(t, err, ErrSinkClosed)
}

func TestSinkPushError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.Error(t, sinkPushError(ctx, ErrSinkClosed))
	cancel()
	assert.NoError(t, sinkPushError(ctx, ErrSinkClosed))
}
