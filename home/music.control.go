package home

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/vibestream/proc"
	"github.com/leeineian/vibestream/sys"
)

const stopTimeout = 10 * time.Second

func handleMusicSkip(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	res, err := music.Player.Skip(*event.GuildID())
	if err != nil {
		replyEphemeral(event, failureText(err))
		return
	}
	reply(event, formatSkip(res))
}

func handleMusicShuffle(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	if err := music.Player.Shuffle(*event.GuildID()); err != nil {
		replyEphemeral(event, failureText(err))
		return
	}
	reply(event, "🔀 "+proc.MsgShuffled)
}

func handleMusicStop(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	guildID := *event.GuildID()
	if err := music.Player.Stop(ctx, guildID); err != nil {
		replyEphemeral(event, failureText(err))
		return
	}
	sys.LogVoice(MsgUserStopped, event.User().Username, event.User().ID, guildID)
	reply(event, "🛑 "+proc.MsgStopped)
}

func handleMusicQueue(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	titles, err := music.Player.Queue(*event.GuildID())
	if err != nil {
		replyEphemeral(event, failureText(err))
		return
	}
	replyEphemeral(event, formatQueue(titles))
}

func handleMusicHelp(event *events.ApplicationCommandInteractionCreate, _ discord.SlashCommandInteractionData) {
	reply(event, helpText())
}
