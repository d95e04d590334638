package proc

// User-facing status strings. The front end may decorate them but never
// changes their meaning.
const (
	MsgNothingPlaying    = "nothing playing"
	MsgQueueEnded        = "queue ended"
	MsgSkippedNowPlaying = "skipped, now playing %s"
	MsgShuffled          = "shuffled"
	MsgNotEnoughSongs    = "not enough songs"
	MsgStopped           = "stopped"
	MsgNotListenable     = "not in a listenable context"
	MsgFailedNextTrack   = "failed to play the next track"
	MsgNoResults         = "No results found"
)

// Log lines.
const (
	MsgSessionCreated     = "Session created for guild %s"
	MsgSessionDestroyed   = "Session destroyed for guild %s (%s)"
	MsgTrackStarting      = "[%s] Starting %q in guild %s"
	MsgTrackPlaying       = "[%s] Playing %q in guild %s"
	MsgTrackFinished      = "[%s] Finished %q in guild %s"
	MsgTrackInterrupted   = "[%s] Interrupted %q in guild %s"
	MsgTrackFailed        = "[%s] Failed %q in guild %s: %v"
	MsgTrackUnexpected    = "[%s] Front of queue changed under %q in guild %s"
	MsgSinkLost           = "Output connection lost in guild %s: %v"
	MsgSinkAcquireFailed  = "Could not acquire output for guild %s: %v"
	MsgHistoryFailed      = "Failed to record history for guild %s: %v"
	MsgPipeStarted        = "[%s] Pipe started (yt-dlp pid %d, ffmpeg pid %d)"
	MsgPipeStderr         = "[%s] %s: %s"
	MsgResolveTimeout     = "Resolve timed out after %v: %s"
	MsgResolveFailed      = "Resolve failed for %s: %v"
	MsgPlaylistResolved   = "Playlist %s: %d entries (%d skipped)"
	MsgPlaylistSkipEntry  = "Skipping invalid playlist entry at position %d"
	MsgSearchFailed       = "%s search failed for %q: %v"
	MsgVoiceJoining       = "Joining channel %s in guild %s"
	MsgVoiceRetry         = "Retrying voice connection in %v (Attempt %d/%d)"
	MsgVoiceJoinFailed    = "Failed to connect to voice in guild %s after %d attempts: %v"
	MsgToolFound          = "%s found: %s"
	MsgToolMissing        = "%s is not available (%s): %v"
	MsgShutdownSessions   = "Stopping %d active session(s)..."
	MsgProviderPanic      = "Recovered panic while updating voice connection in guild %s: %v"
	MsgEncoderUnavailable = "libopus encoder is not available"
)
