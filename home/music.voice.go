package home

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/vibestream/sys"
)

const notifyTimeout = 10 * time.Second

// voiceJoins tracks guilds where the bot is joining a voice channel.
// Gateway events arrive in order, so a disconnect seen before the bot's own
// connect event belongs to the previous connection.
type voiceJoins struct {
	mu      sync.Mutex
	pending map[snowflake.ID]struct{}
}

var joins = newVoiceJoins()

func newVoiceJoins() *voiceJoins {
	return &voiceJoins{pending: make(map[snowflake.ID]struct{})}
}

func (j *voiceJoins) begin(guildID snowflake.ID) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending[guildID] = struct{}{}
}

func (j *voiceJoins) abort(guildID snowflake.ID) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.pending, guildID)
}

// observe records a voice state change of the bot and reports whether it
// is a disconnect that should end the session.
func (j *voiceJoins) observe(guildID snowflake.ID, connected bool) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if connected {
		delete(j.pending, guildID)
		return false
	}
	_, joining := j.pending[guildID]
	return !joining
}

// handleMusicVoiceState ends the session when the bot is disconnected from
// voice by someone else.
func handleMusicVoiceState(event *events.GuildVoiceStateUpdate) {
	if music.Player == nil {
		return
	}
	vs := event.VoiceState
	if vs.UserID != event.Client().ID() {
		return
	}
	if !joins.observe(vs.GuildID, vs.ChannelID != nil) {
		if vs.ChannelID == nil {
			sys.LogDebug(MsgStaleDisconnect, vs.GuildID)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := music.Player.Stop(ctx, vs.GuildID); err == nil {
		sys.LogVoice(MsgBotDisconnected, vs.GuildID)
	}
}

// ChannelNotifier posts player notices into the text channel where playback
// was last requested in each guild.
type ChannelNotifier struct {
	client *bot.Client

	mu       sync.Mutex
	channels map[snowflake.ID]snowflake.ID
}

func NewChannelNotifier(client *bot.Client) *ChannelNotifier {
	return &ChannelNotifier{
		client:   client,
		channels: make(map[snowflake.ID]snowflake.ID),
	}
}

// Bind remembers where notices for guildID go.
func (n *ChannelNotifier) Bind(guildID, channelID snowflake.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels[guildID] = channelID
}

func (n *ChannelNotifier) channel(guildID snowflake.ID) (snowflake.ID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.channels[guildID]
	return ch, ok
}

// Notify sends msg without blocking the caller.
func (n *ChannelNotifier) Notify(guildID snowflake.ID, msg string) {
	channelID, ok := n.channel(guildID)
	if !ok || n.client == nil {
		return
	}

	sys.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		_, err := n.client.Rest.CreateMessage(channelID, discord.NewMessageCreate().
			WithContent("❌ "+msg), rest.WithCtx(ctx))
		if err != nil {
			sys.LogWarn(MsgNotifyFailed, channelID, err)
		}
	})
}
