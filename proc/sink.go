package proc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/vibestream/sys"
)

// Sink is the output of a session. Play blocks until pcm is exhausted (nil)
// or the output fails.
type Sink interface {
	Play(ctx context.Context, pcm io.Reader) error
	Close(ctx context.Context)
}

// SinkFactory acquires the output for a new session.
type SinkFactory func(ctx context.Context) (Sink, error)

const (
	joinAttempts      = 5
	silenceFrames     = 5
	frameBuffer       = 100
	frameStallTimeout = 10 * time.Second
	DefaultBitrate    = 128000
)

var OpusSilence = []byte{0xf8, 0xff, 0xfe}

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)
}

// VoiceSink plays PCM into a Discord voice channel.
type VoiceSink struct {
	guildID snowflake.ID
	conn    voice.Conn
	bitrate int64

	mu     sync.Mutex
	closed bool
}

// VoiceSinkFactory joins channelID when the session needs an output.
func VoiceSinkFactory(client *bot.Client, guildID, channelID snowflake.ID, bitrate int64) SinkFactory {
	return func(ctx context.Context) (Sink, error) {
		vs, err := JoinVoice(ctx, client, guildID, channelID, bitrate)
		if err != nil {
			return nil, err
		}
		return vs, nil
	}
}

// JoinVoice opens a voice connection, retrying with exponential backoff.
func JoinVoice(ctx context.Context, client *bot.Client, guildID, channelID snowflake.ID, bitrate int64) (*VoiceSink, error) {
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	sys.LogVoice(MsgVoiceJoining, channelID, guildID)
	conn := client.VoiceManager.CreateConn(guildID)

	var lastErr error
	for i := range joinAttempts {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			sys.LogVoice(MsgVoiceRetry, backoff, i+1, joinAttempts)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				conn.Close(context.Background())
				return nil, ctx.Err()
			}
		}
		if err := conn.Open(ctx, channelID, false, false); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}

	if lastErr != nil {
		sys.LogVoiceWarn(MsgVoiceJoinFailed, guildID, joinAttempts, lastErr)
		conn.Close(ctx)
		return nil, lastErr
	}
	return &VoiceSink{guildID: guildID, conn: conn, bitrate: bitrate}, nil
}

func (v *VoiceSink) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Play encodes pcm in 20ms frames and hands them to the voice connection.
// Reads block on the transcoder, so the process never runs ahead of the
// channel buffer.
func (v *VoiceSink) Play(ctx context.Context, pcm io.Reader) error {
	if v.isClosed() {
		return &SinkError{Kind: SinkOutputRejected, Err: ErrSinkClosed}
	}

	enc, err := newOpusEncoder(v.bitrate)
	if err != nil {
		return &SinkError{Kind: SinkOutputRejected, Err: err}
	}
	defer enc.Close()

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	provider := newFrameProvider(playCtx)
	if !v.setProvider(provider) {
		return &SinkError{Kind: SinkOutputRejected, Err: ErrSinkClosed}
	}
	v.setSpeaking(ctx, voice.SpeakingFlagMicrophone)
	defer func() {
		v.setProvider(nil)
		v.setSpeaking(context.Background(), 0)
	}()

	buf := make([]byte, PCMFrameBytes)
	for {
		n, readErr := io.ReadFull(pcm, buf)
		if n > 0 {
			if n < len(buf) {
				clear(buf[n:])
			}
			packets, err := enc.Encode(buf)
			if err != nil {
				return &SinkError{Kind: SinkOutputRejected, Err: err}
			}
			if err := provider.pushAll(packets); err != nil {
				return sinkPushError(ctx, err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			return &PipeError{Kind: PipeDecodeFailure, Process: ffmpegName, Err: readErr}
		}
	}

	if err := provider.pushAll(enc.Flush()); err != nil {
		return sinkPushError(ctx, err)
	}
	if err := provider.push(nil); err != nil {
		return sinkPushError(ctx, err)
	}

	select {
	case <-provider.drained:
	case <-ctx.Done():
	}
	return nil
}

func sinkPushError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return &SinkError{Kind: SinkOutputRejected, Err: err}
}

func (v *VoiceSink) setProvider(p voice.OpusFrameProvider) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoiceWarn(MsgProviderPanic, v.guildID, r)
			ok = false
		}
	}()
	v.conn.SetOpusFrameProvider(p)
	return true
}

func (v *VoiceSink) setSpeaking(ctx context.Context, flags voice.SpeakingFlags) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoiceWarn(MsgProviderPanic, v.guildID, r)
		}
	}()
	v.conn.SetSpeaking(ctx, flags)
}

// Close leaves the voice channel. Safe to call more than once.
func (v *VoiceSink) Close(ctx context.Context) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.conn.Close(ctx)
}

// frameProvider implements voice.OpusFrameProvider on top of a bounded
// channel. A nil frame marks the end of the track and is followed by a few
// silence frames.
type frameProvider struct {
	ctx     context.Context
	frames  chan []byte
	drained chan struct{}
	once    sync.Once

	// Only touched by the voice sender goroutine.
	draining bool
	silence  int
}

func newFrameProvider(ctx context.Context) *frameProvider {
	return &frameProvider{
		ctx:     ctx,
		frames:  make(chan []byte, frameBuffer),
		drained: make(chan struct{}),
	}
}

func (p *frameProvider) push(f []byte) error {
	timer := time.NewTimer(frameStallTimeout)
	defer timer.Stop()

	select {
	case p.frames <- f:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-p.drained:
		return ErrSinkClosed
	case <-timer.C:
		return ErrSinkClosed
	}
}

func (p *frameProvider) pushAll(frames [][]byte) error {
	for _, f := range frames {
		if len(f) == 0 {
			continue
		}
		if err := p.push(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *frameProvider) ProvideOpusFrame() ([]byte, error) {
	if p.draining {
		if p.silence < silenceFrames {
			p.silence++
			return OpusSilence, nil
		}
		p.Close()
		return nil, io.EOF
	}

	select {
	case f := <-p.frames:
		if f == nil {
			p.draining = true
			p.silence++
			return OpusSilence, nil
		}
		return f, nil
	case <-p.ctx.Done():
		p.Close()
		return nil, io.EOF
	case <-time.After(500 * time.Millisecond):
		return OpusSilence, nil
	}
}

func (p *frameProvider) Close() {
	p.once.Do(func() {
		close(p.drained)
	})
}

// opusEncoder turns 20ms s16le stereo frames into Opus packets with libopus.
type opusEncoder struct {
	codecCtx *astiav.CodecContext
	frame    *astiav.Frame
	packet   *astiav.Packet
	pts      int64
}

func newOpusEncoder(bitrate int64) (*opusEncoder, error) {
	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		codec = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if codec == nil {
		return nil, errors.New(MsgEncoderUnavailable)
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New(MsgEncoderUnavailable)
	}
	cc.SetBitRate(bitrate)
	cc.SetSampleRate(SampleRate)
	cc.SetChannelLayout(astiav.ChannelLayoutStereo)
	cc.SetSampleFormat(astiav.SampleFormatS16)
	cc.SetTimeBase(astiav.NewRational(1, SampleRate))

	opts := astiav.NewDictionary()
	defer opts.Free()
	opts.Set("vbr", "on", 0)
	opts.Set("compression_level", "10", 0)
	opts.Set("frame_duration", "20", 0)

	if err := cc.Open(codec, opts); err != nil {
		cc.Free()
		return nil, err
	}
	return &opusEncoder{
		codecCtx: cc,
		frame:    astiav.AllocFrame(),
		packet:   astiav.AllocPacket(),
	}, nil
}

func (e *opusEncoder) Encode(pcm []byte) ([][]byte, error) {
	e.frame.Unref()
	e.frame.SetNbSamples(FrameSamples)
	e.frame.SetChannelLayout(astiav.ChannelLayoutStereo)
	e.frame.SetSampleFormat(astiav.SampleFormatS16)
	e.frame.SetSampleRate(SampleRate)
	if err := e.frame.AllocBuffer(0); err != nil {
		return nil, err
	}
	if err := e.frame.Data().SetBytes(pcm, 1); err != nil {
		return nil, err
	}
	e.frame.SetPts(e.pts)
	e.pts += FrameSamples

	if err := e.codecCtx.SendFrame(e.frame); err != nil {
		return nil, err
	}
	return e.receive(), nil
}

// Flush drains packets still buffered in the encoder.
func (e *opusEncoder) Flush() [][]byte {
	if err := e.codecCtx.SendFrame(nil); err != nil {
		return nil
	}
	return e.receive()
}

func (e *opusEncoder) receive() [][]byte {
	var out [][]byte
	for {
		e.packet.Unref()
		if e.codecCtx.ReceivePacket(e.packet) != nil {
			break
		}
		d := e.packet.Data()
		f := make([]byte, len(d))
		copy(f, d)
		out = append(out, f)
	}
	return out
}

func (e *opusEncoder) Close() {
	e.packet.Free()
	e.frame.Free()
	e.codecCtx.Free()
}
