package proc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTools(t *testing.T) {
	cfg := LauncherConfig{
		YtdlpPath:  writeScript(t, "yt-dlp", "echo 2025.06.30"),
		FFmpegPath: writeScript(t, "ffmpeg", "echo 'ffmpeg version 7.1 Copyright (c) 2000-2024'\necho 'built with gcc'"),
	}

	statuses := CheckTools(context.Background(), cfg)
	require.Len(t, statuses, 2)

	assert.True(t, statuses[0].OK())
	assert.Equal(t, ytdlpName, statuses[0].Name)
	assert.Equal(t, "2025.06.30", statuses[0].Version)

	assert.True(t, statuses[1].OK())
	assert.Equal(t, "ffmpeg version 7.1 Copyright (c) 2000-2024", statuses[1].Version)
}

func TestCheckTools_Missing(t *testing.T) {
	cfg := LauncherConfig{
		YtdlpPath:  writeScript(t, "yt-dlp", "echo 'broken install' >&2\nexit 2"),
		FFmpegPath: filepath.Join(t.TempDir(), "ffmpeg"),
	}

	statuses := CheckTools(context.Background(), cfg)
	require.Len(t, statuses, 2)

	assert.False(t, statuses[0].OK())
	assert.Contains(t, statuses[0].Err.Error(), "broken install")
	assert.False(t, statuses[1].OK())
	assert.Equal(t, cfg.FFmpegPath, statuses[1].Path)
}
