package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/vibestream/proc"
	"github.com/leeineian/vibestream/sys"
)

// MusicDeps are the services behind /music. main builds them once the
// client exists and hands them over with Setup.
type MusicDeps struct {
	Player   *proc.Player
	Resolver *proc.Resolver
	History  *sys.HistoryStore
	Notifier *ChannelNotifier
	Bitrate  int64
}

var music MusicDeps

// Setup wires the playback services into the /music handlers. It must run
// before the gateway is opened.
func Setup(deps MusicDeps) {
	music = deps
}

func init() {
	perm := discord.PermissionConnect | discord.PermissionSpeak

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "music",
		Description:              "Music player",
		DefaultMemberPermissions: omit.New(&perm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Play a song from a link or a search",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "query",
						Description:  "Music title or link",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playlist",
				Description: "Queue every song of a YouTube playlist",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "url",
						Description: "Playlist link (must contain list=)",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shuffle",
				Description: "Shuffle the upcoming songs",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop the music and leave",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Show the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "help",
				Description: "Show the music commands",
			},
		},
	}, handleMusic)

	sys.RegisterAutocompleteHandler("music", handleMusicAutocomplete)
	sys.RegisterVoiceStateUpdateHandler(handleMusicVoiceState)
}

func handleMusic(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil || event.GuildID() == nil {
		return
	}
	if music.Player == nil || music.Resolver == nil {
		replyEphemeral(event, MsgMusicNotReady)
		return
	}

	switch *data.SubCommandName {
	case "play":
		handleMusicPlay(event, data)
	case "playlist":
		handleMusicPlaylist(event, data)
	case "skip":
		handleMusicSkip(event, data)
	case "shuffle":
		handleMusicShuffle(event, data)
	case "stop":
		handleMusicStop(event, data)
	case "queue":
		handleMusicQueue(event, data)
	case "help":
		handleMusicHelp(event, data)
	}
}

func replyEphemeral(event *events.ApplicationCommandInteractionCreate, content string) {
	err := event.CreateMessage(discord.NewMessageCreate().
		WithContent(content).
		WithEphemeral(true))
	if err != nil {
		sys.LogDebug(MsgReplyFailed, err)
	}
}

func reply(event *events.ApplicationCommandInteractionCreate, content string) {
	err := event.CreateMessage(discord.NewMessageCreate().
		WithContent(content))
	if err != nil {
		sys.LogDebug(MsgReplyFailed, err)
	}
}

// updateResponse replaces the deferred "thinking" message.
func updateResponse(event *events.ApplicationCommandInteractionCreate, content string) {
	_, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdate().
		WithContent(content))
	if err != nil {
		sys.LogDebug(MsgReplyFailed, err)
	}
}
