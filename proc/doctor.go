package proc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/leeineian/vibestream/sys"
	"github.com/lrstanley/go-ytdlp"
)

const toolCheckTimeout = 10 * time.Second

// ToolStatus is the outcome of probing one external executable.
type ToolStatus struct {
	Name    string
	Path    string
	Version string
	Err     error
}

func (s ToolStatus) OK() bool {
	return s.Err == nil
}

// CheckTools runs yt-dlp and ffmpeg and logs what was found. Playback
// cannot work without both, so main refuses to start when either is missing.
func CheckTools(ctx context.Context, cfg LauncherConfig) []ToolStatus {
	if cfg.YtdlpPath == "" {
		cfg.YtdlpPath = ytdlpName
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = ffmpegName
	}

	ctx, cancel := context.WithTimeout(ctx, toolCheckTimeout)
	defer cancel()

	statuses := []ToolStatus{
		checkYtdlp(ctx, cfg.YtdlpPath),
		checkTool(ffmpegName, cfg.FFmpegPath, exec.CommandContext(ctx, cfg.FFmpegPath, "-hide_banner", "-version")),
	}
	for _, st := range statuses {
		if st.OK() {
			sys.LogInfo(MsgToolFound, st.Name, st.Version)
		} else {
			sys.LogError(MsgToolMissing, st.Name, st.Path, st.Err)
		}
	}
	return statuses
}

func checkYtdlp(ctx context.Context, path string) ToolStatus {
	st := ToolStatus{Name: ytdlpName, Path: path}

	res, err := ytdlp.New().
		SetExecutable(path).
		Run(ctx, "--version")
	if err != nil {
		if res != nil {
			if msg := strings.TrimSpace(res.Stderr); msg != "" && !strings.Contains(err.Error(), msg) {
				err = fmt.Errorf("%w: %s", err, msg)
			}
		}
		st.Err = err
		return st
	}
	st.Version = firstLine(res.Stdout)
	return st
}

func checkTool(name, path string, cmd *exec.Cmd) ToolStatus {
	st := ToolStatus{Name: name, Path: path}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeWaitDelay
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		st.Err = err
		return st
	}

	st.Version = firstLine(stdout.String())
	return st
}

func firstLine(s string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(first)
}
