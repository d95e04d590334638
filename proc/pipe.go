package proc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/vibestream/sys"
	"github.com/lrstanley/go-ytdlp"
)

const (
	ytdlpName  = "yt-dlp"
	ffmpegName = "ffmpeg"

	// PCM layout produced by the transcoder.
	SampleRate    = 48000
	Channels      = 2
	FrameSamples  = 960
	PCMFrameBytes = FrameSamples * Channels * 2

	pipeWaitDelay = time.Second
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Pipe is a running extractor/transcoder pair for one track.
type Pipe interface {
	// Stream is the transcoder output: raw s16le, 48 kHz, stereo.
	Stream() io.Reader
	// Wait blocks until both processes exited and reports how the pipe ended.
	// A terminated pipe always reports nil.
	Wait() error
	// Terminate force-stops both processes. Safe to call more than once.
	Terminate()
}

// Launcher starts pipes for urls.
type Launcher interface {
	Start(ctx context.Context, url string) (Pipe, error)
}

// LauncherConfig holds the executables and network options for a PipeLauncher.
type LauncherConfig struct {
	YtdlpPath  string
	FFmpegPath string
	Proxy      string
}

// PipeLauncher starts yt-dlp | ffmpeg process pairs.
type PipeLauncher struct {
	cfg LauncherConfig
}

func NewPipeLauncher(cfg LauncherConfig) *PipeLauncher {
	if cfg.YtdlpPath == "" {
		cfg.YtdlpPath = ytdlpName
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = ffmpegName
	}
	return &PipeLauncher{cfg: cfg}
}

// extractorCommand builds the yt-dlp invocation writing the best audio
// stream of url to stdout.
func (l *PipeLauncher) extractorCommand(ctx context.Context, url string) *exec.Cmd {
	cmd := ytdlp.New().
		SetExecutable(l.cfg.YtdlpPath).
		SetEnvVar("PYTHONUNBUFFERED", "1").
		Format("bestaudio[ext=webm]/bestaudio/best").
		Output("-").
		NoPlaylist().
		NoCheckCertificates().
		NoPart().
		Quiet().
		NoWarnings()

	if l.cfg.Proxy != "" {
		cmd.Proxy(l.cfg.Proxy)
	}

	execCmd := cmd.BuildCommand(ctx,
		"--add-header", "User-Agent: "+userAgent,
		"--add-header", "Referer: https://www.youtube.com/",
		"--extractor-args", "youtube:player_client=android",
		url,
	)
	execCmd.Stdout, execCmd.Stderr = nil, nil
	return execCmd
}

func (l *PipeLauncher) transcoderCommand(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, l.cfg.FFmpegPath,
		"-hide_banner",
		"-loglevel", "warning",
		"-i", "pipe:0",
		"-vn",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"pipe:1",
	)
}

// Start launches the extractor and the transcoder connected by an OS pipe.
// The transcoder's stdout is exposed as the stream. If either process fails
// to spawn, whatever was already started is killed.
func (l *PipeLauncher) Start(ctx context.Context, url string) (Pipe, error) {
	pipeCtx, cancel := context.WithCancel(ctx)
	p := &ProcessPipe{url: url, cancel: cancel, done: make(chan struct{})}

	link, linkW, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, &LaunchError{Kind: LaunchSpawnFailed, Process: ytdlpName, Err: err}
	}
	out, outW, err := os.Pipe()
	if err != nil {
		cancel()
		link.Close()
		linkW.Close()
		return nil, &LaunchError{Kind: LaunchSpawnFailed, Process: ffmpegName, Err: err}
	}

	extLog := &stderrLogger{url: url, name: ytdlpName}
	p.extractor = l.extractorCommand(pipeCtx, url)
	p.extractor.Stdout = linkW
	p.extractor.Stderr = extLog
	p.extractor.WaitDelay = pipeWaitDelay

	tcLog := &stderrLogger{url: url, name: ffmpegName}
	p.transcoder = l.transcoderCommand(pipeCtx)
	p.transcoder.Stdin = link
	p.transcoder.Stdout = outW
	p.transcoder.Stderr = tcLog
	p.transcoder.WaitDelay = pipeWaitDelay

	if err := p.extractor.Start(); err != nil {
		cancel()
		closeAll(link, linkW, out, outW)
		return nil, &LaunchError{Kind: LaunchSpawnFailed, Process: ytdlpName, Err: err}
	}
	if err := p.transcoder.Start(); err != nil {
		cancel()
		killProcess(p.extractor)
		closeAll(linkW, link, outW)
		_ = p.extractor.Wait()
		out.Close()
		return nil, &LaunchError{Kind: LaunchSpawnFailed, Process: ffmpegName, Err: err}
	}

	// The children hold their own copies now.
	closeAll(linkW, link, outW)
	p.stream = out

	sys.LogPipe(MsgPipeStarted, shortURL(url), p.extractor.Process.Pid, p.transcoder.Process.Pid)

	go p.supervise(extLog, tcLog)
	return p, nil
}

// ProcessPipe is a Pipe backed by two OS processes.
type ProcessPipe struct {
	url        string
	extractor  *exec.Cmd
	transcoder *exec.Cmd
	stream     *os.File
	cancel     context.CancelFunc

	terminateOnce sync.Once
	mu            sync.Mutex
	terminated    bool

	done    chan struct{}
	outcome error
}

func (p *ProcessPipe) Stream() io.Reader {
	return p.stream
}

func (p *ProcessPipe) supervise(logs ...*stderrLogger) {
	tcErr := p.transcoder.Wait()
	// Nothing reads the extractor once the transcoder is gone.
	killProcess(p.extractor)
	extErr := p.extractor.Wait()
	for _, l := range logs {
		l.Flush()
	}

	p.mu.Lock()
	terminated := p.terminated
	p.mu.Unlock()

	switch {
	case terminated:
		p.outcome = nil
	case tcErr != nil:
		p.outcome = &PipeError{Kind: PipeDecodeFailure, Process: ffmpegName, Err: tcErr}
	case extErr != nil && !isBrokenPipe(extErr):
		p.outcome = &PipeError{Kind: PipeDecodeFailure, Process: ytdlpName, Err: extErr}
	}
	p.cancel()
	close(p.done)
}

func (p *ProcessPipe) Wait() error {
	<-p.done
	return p.outcome
}

// Done is closed once both processes exited.
func (p *ProcessPipe) Done() <-chan struct{} {
	return p.done
}

func (p *ProcessPipe) Terminate() {
	p.terminateOnce.Do(func() {
		p.mu.Lock()
		p.terminated = true
		p.mu.Unlock()

		p.cancel()
		killProcess(p.extractor)
		killProcess(p.transcoder)
		_ = p.stream.Close()
	})
}

func killProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		sys.LogDebug("kill %s: %v", cmd.Path, err)
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// stderrLogger forwards a child's stderr to the log one line at a time.
type stderrLogger struct {
	url  string
	name string

	mu  sync.Mutex
	buf []byte
}

func (w *stderrLogger) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}

func (w *stderrLogger) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit(string(w.buf))
	w.buf = nil
}

func (w *stderrLogger) emit(line string) {
	line = strings.TrimSpace(line)
	if line != "" {
		sys.LogPipe(MsgPipeStderr, shortURL(w.url), w.name, line)
	}
}

func shortURL(u string) string {
	if len(u) > 64 {
		return u[:61] + "..."
	}
	return u
}
