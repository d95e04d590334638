package proc

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

var (
	ErrNothingPlaying  = errors.New(MsgNothingPlaying)
	ErrNotEnoughTracks = errors.New(MsgNotEnoughSongs)
	ErrNotListenable   = errors.New(MsgNotListenable)
	ErrNoTracks        = errors.New("no tracks to enqueue")
	ErrSinkClosed      = errors.New("output connection closed")
)

type ResolveErrorKind int

const (
	ResolveTimeout ResolveErrorKind = iota
	ResolveNotFound
)

func (k ResolveErrorKind) String() string {
	switch k {
	case ResolveTimeout:
		return "timeout"
	case ResolveNotFound:
		return "not-found"
	}
	return "unknown"
}

// ResolveError means metadata for a url could not be obtained.
type ResolveError struct {
	Kind ResolveErrorKind
	URL  string
	Err  error
}

func (e *ResolveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("resolve %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

type LaunchErrorKind int

const (
	LaunchSpawnFailed LaunchErrorKind = iota
)

func (k LaunchErrorKind) String() string {
	return "spawn-failed"
}

// LaunchError means one of the pipe processes could not be started.
type LaunchError struct {
	Kind    LaunchErrorKind
	Process string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %s: %v", e.Process, e.Kind, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

type PipeErrorKind int

const (
	PipeBrokenPipe PipeErrorKind = iota
	PipeDecodeFailure
)

func (k PipeErrorKind) String() string {
	switch k {
	case PipeBrokenPipe:
		return "broken-pipe"
	case PipeDecodeFailure:
		return "decode-failure"
	}
	return "unknown"
}

// PipeError is a failure of a running extractor or transcoder.
type PipeError struct {
	Kind    PipeErrorKind
	Process string
	Err     error
}

func (e *PipeError) Error() string {
	return fmt.Sprintf("pipe %s: %s: %v", e.Process, e.Kind, e.Err)
}

func (e *PipeError) Unwrap() error { return e.Err }

type SinkErrorKind int

const (
	SinkOutputRejected SinkErrorKind = iota
)

func (k SinkErrorKind) String() string {
	return "output-rejected"
}

// SinkError means the output refused the stream.
type SinkError struct {
	Kind SinkErrorKind
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink: %s: %v", e.Kind, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// isBrokenPipe reports errors that are expected when one side of the pipe
// goes away first, including our own SIGKILL.
func isBrokenPipe(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "signal: killed") || strings.Contains(msg, "signal: broken pipe")
}
