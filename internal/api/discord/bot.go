// Package discord routes Discord chat commands to guild sessions.
package discord

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/stagebox/internal/app/playback"
	"github.com/osa030/stagebox/internal/app/session"
	"github.com/osa030/stagebox/internal/domain/track"
	"github.com/osa030/stagebox/internal/infra/config"
)

// Sender posts messages to text channels.
type Sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// VoiceLocator returns the voice channel a user is connected to.
type VoiceLocator func(guildID, userID string) (string, bool)

// StateVoiceLocator looks users up in the session's state cache.
func StateVoiceLocator(s *discordgo.Session) VoiceLocator {
	return func(guildID, userID string) (string, bool) {
		vs, err := s.State.VoiceState(guildID, userID)
		if err != nil || vs == nil || vs.ChannelID == "" {
			return "", false
		}
		return vs.ChannelID, true
	}
}

// request is one command invocation.
type request struct {
	guildID   string
	channelID string
	requester track.Requester
	args      string
}

type handlerFunc func(ctx context.Context, req request) string

// Bot handles chat commands for every guild.
type Bot struct {
	config   *config.Config
	sender   Sender
	sessions *session.Registry
	locate   VoiceLocator
	limiter  *userLimiter
	handlers map[string]handlerFunc

	mu         sync.Mutex
	botID      string
	announcers map[string]*announcer
}

// New creates a new Bot.
func New(cfg *config.Config, sender Sender, sessions *session.Registry, locate VoiceLocator) *Bot {
	b := &Bot{
		config:     cfg,
		sender:     sender,
		sessions:   sessions,
		locate:     locate,
		limiter:    newUserLimiter(cfg.Discord.CommandRate, cfg.Discord.CommandBurst),
		announcers: make(map[string]*announcer),
	}
	b.handlers = map[string]handlerFunc{
		"play":   b.handlePlay,
		"join":   b.handleJoin,
		"skip":   b.handleSkip,
		"pause":  b.handlePause,
		"resume": b.handleResume,
		"volume": b.handleVolume,
		"leave":  b.handleLeave,
		"queue":  b.handleQueue,
		"np":     b.handleNowPlaying,
		"remove": b.handleRemove,
		"help":   b.handleHelp,
	}
	return b
}

// Register adds the bot's event handlers to a Discord session.
func (b *Bot) Register(s *discordgo.Session) {
	s.AddHandler(b.onReady)
	s.AddHandler(b.onMessageCreate)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.setBotID(r.User.ID)
	zlog.Info().Msgf("discord: logged in as %s (ID: %s), guilds=%d", r.User.Username, r.User.ID, len(r.Guilds))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleMessage(m.Message)
}

func (b *Bot) setBotID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.botID = id
}

func (b *Bot) getBotID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.botID
}

// handleMessage parses and runs a command, replying in the same channel.
func (b *Bot) handleMessage(m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	if len(b.config.Discord.Channels) > 0 && !slices.Contains(b.config.Discord.Channels, m.ChannelID) {
		return
	}

	cmd, ok := parseCommand(m.Content, b.config.Discord.Prefix, b.getBotID())
	if !ok {
		return
	}
	handler, ok := b.handlers[cmd.name]
	if !ok {
		return
	}

	if !b.limiter.Allow(m.Author.ID) {
		zlog.Debug().Str("guild", m.GuildID).Msgf("discord: rate limited: user=%s command=%s", m.Author.ID, cmd.name)
		b.reply(m.ChannelID, b.config.GetMessage("rate_limited"))
		return
	}

	zlog.Debug().Str("guild", m.GuildID).Msgf("discord: command: user=%s command=%s args=%q", m.Author.ID, cmd.name, cmd.args)

	req := request{
		guildID:   m.GuildID,
		channelID: m.ChannelID,
		requester: requesterOf(m),
		args:      cmd.args,
	}
	b.reply(m.ChannelID, handler(context.Background(), req))
}

func (b *Bot) reply(channelID, text string) {
	if text == "" {
		return
	}
	if _, err := b.sender.ChannelMessageSend(channelID, text); err != nil {
		zlog.Warn().Err(err).Msgf("discord: failed to reply in %s", channelID)
	}
}

func requesterOf(m *discordgo.Message) track.Requester {
	name := m.Author.Username
	if m.Author.GlobalName != "" {
		name = m.Author.GlobalName
	}
	if m.Member != nil && m.Member.Nick != "" {
		name = m.Member.Nick
	}
	return track.Requester{ID: m.Author.ID, Name: name}
}

// manager returns the guild session, creating it and its announcer if needed.
// Announcements follow the channel of the latest command.
func (b *Bot) manager(guildID, channelID string) (*session.Manager, error) {
	m, err := b.sessions.GetOrCreate(guildID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	a, ok := b.announcers[guildID]
	if !ok {
		a = newAnnouncer(b.sender)
		m.GetNotificationManager().Subscribe(a)
		b.announcers[guildID] = a
	}
	b.mu.Unlock()

	a.setChannel(channelID)
	return m, nil
}

// existing returns the guild session only if one was created before.
func (b *Bot) existing(req request) (*session.Manager, bool) {
	m, ok := b.sessions.Get(req.guildID)
	if !ok {
		return nil, false
	}
	if _, err := b.manager(req.guildID, req.channelID); err != nil {
		return nil, false
	}
	return m, true
}

// ensureVoice joins the requester's voice channel unless already connected.
func (b *Bot) ensureVoice(m *session.Manager, req request) string {
	if m.Status().VoiceChannelID != "" {
		return ""
	}
	channelID, ok := b.locate(req.guildID, req.requester.ID)
	if !ok {
		return b.config.GetMessage("not_in_voice")
	}
	if err := m.Join(channelID); err != nil {
		zlog.Error().Err(err).Str("guild", req.guildID).Msg("discord: failed to join voice channel")
		return b.config.GetMessage("not_connected")
	}
	return ""
}

func (b *Bot) handlePlay(ctx context.Context, req request) string {
	if req.args == "" {
		return fmt.Sprintf("Usage: `%splay <url or search terms>`", b.config.Discord.Prefix)
	}
	m, err := b.manager(req.guildID, req.channelID)
	if err != nil {
		zlog.Error().Err(err).Str("guild", req.guildID).Msg("discord: failed to create session")
		return b.config.GetMessage("")
	}
	if msg := b.ensureVoice(m, req); msg != "" {
		return msg
	}

	if err := b.sender.ChannelTyping(req.channelID); err != nil {
		zlog.Debug().Err(err).Msg("discord: typing indicator")
	}

	ctx, cancel := context.WithTimeout(ctx, b.resolveTimeout())
	defer cancel()

	result, err := m.Enqueue(ctx, req.args, req.requester)
	if err != nil {
		if errors.Is(err, session.ErrNothingFound) {
			return b.config.GetMessage("track_not_found")
		}
		zlog.Error().Err(err).Str("guild", req.guildID).Msg("discord: enqueue failed")
		return b.config.GetMessage("")
	}
	if result.Count > 1 {
		return fmt.Sprintf("**Queued %d tracks** starting at position %d", result.Count, result.Position)
	}
	// Resolution reports the outcome through the announcer
	return ""
}

func (b *Bot) resolveTimeout() time.Duration {
	if t := b.config.Playback.ResolveTimeout; t > 0 {
		return t
	}
	return 30 * time.Second
}

func (b *Bot) handleJoin(ctx context.Context, req request) string {
	m, err := b.manager(req.guildID, req.channelID)
	if err != nil {
		return b.config.GetMessage("")
	}
	channelID, ok := b.locate(req.guildID, req.requester.ID)
	if !ok {
		return b.config.GetMessage("not_in_voice")
	}
	if err := m.Join(channelID); err != nil {
		zlog.Error().Err(err).Str("guild", req.guildID).Msg("discord: failed to join voice channel")
		return b.config.GetMessage("not_connected")
	}
	return fmt.Sprintf("**Joined** <#%s>", channelID)
}

func (b *Bot) handleSkip(ctx context.Context, req request) string {
	m, ok := b.existing(req)
	if !ok {
		return b.config.GetMessage("not_playing")
	}
	if err := m.Skip(); err != nil {
		return b.stateError(err)
	}
	return "**Skipped to the next song.**"
}

func (b *Bot) handlePause(ctx context.Context, req request) string {
	m, ok := b.existing(req)
	if !ok {
		return b.config.GetMessage("nothing_to_pause")
	}
	if err := m.Pause(); err != nil {
		return b.stateError(err)
	}
	return "**Song paused.**"
}

func (b *Bot) handleResume(ctx context.Context, req request) string {
	m, ok := b.existing(req)
	if !ok {
		return b.config.GetMessage("nothing_to_resume")
	}
	if err := m.Resume(); err != nil {
		return b.stateError(err)
	}
	return "**Song resumed.**"
}

func (b *Bot) handleVolume(ctx context.Context, req request) string {
	m, ok := b.existing(req)
	if !ok || m.Status().VoiceChannelID == "" {
		return b.config.GetMessage("not_connected")
	}
	if req.args == "" {
		return fmt.Sprintf("**Volume:** %d%%", m.Volume())
	}
	percent, err := strconv.Atoi(strings.TrimSuffix(req.args, "%"))
	if err != nil {
		return fmt.Sprintf("Volume must be a number between 0 and %d.", playback.MaxVolume)
	}
	return fmt.Sprintf("**Changed volume** to %d%%", m.SetVolume(percent))
}

func (b *Bot) handleLeave(ctx context.Context, req request) string {
	m, ok := b.existing(req)
	if !ok || m.Status().VoiceChannelID == "" {
		return b.config.GetMessage("not_connected")
	}
	if err := m.Leave(); err != nil {
		zlog.Warn().Err(err).Str("guild", req.guildID).Msg("discord: leave")
	}
	return "**Disconnected.**"
}

func (b *Bot) handleQueue(ctx context.Context, req request) string {
	m, ok := b.existing(req)
	if !ok {
		return b.config.GetMessage("queue_empty")
	}
	return formatQueue(m.Status(), b.config.GetMessage("queue_empty"))
}

func (b *Bot) handleNowPlaying(ctx context.Context, req request) string {
	m, ok := b.existing(req)
	if !ok {
		return b.config.GetMessage("not_playing")
	}
	status := m.Status()
	if status.Current == nil {
		return b.config.GetMessage("not_playing")
	}
	return formatNowPlaying(status)
}

func (b *Bot) handleRemove(ctx context.Context, req request) string {
	position, err := strconv.Atoi(req.args)
	if err != nil {
		return fmt.Sprintf("Usage: `%sremove <position>`", b.config.Discord.Prefix)
	}
	m, ok := b.existing(req)
	if !ok {
		return b.config.GetMessage("invalid_position")
	}
	entry, err := m.Remove(position)
	switch {
	case errors.Is(err, session.ErrCannotRemoveHead):
		return b.config.GetMessage("cannot_remove_current")
	case err != nil:
		return b.config.GetMessage("invalid_position")
	}
	return fmt.Sprintf("**Removed** %s", entry.Track.DisplayTitle())
}

func (b *Bot) handleHelp(ctx context.Context, req request) string {
	p := b.config.Discord.Prefix
	var sb strings.Builder
	sb.WriteString("**Commands**\n")
	for _, line := range [][2]string{
		{"play <url or search>", "Queue a song, a Spotify track, album or playlist"},
		{"skip", "Skip to the next song"},
		{"pause", "Pause the current song"},
		{"resume", "Resume the current song"},
		{"volume [0-200]", "Show or change the volume"},
		{"queue", "Show the queue"},
		{"np", "Show the current song"},
		{"remove <position>", "Remove a queued song"},
		{"join", "Join your voice channel"},
		{"leave", "Stop and disconnect"},
	} {
		fmt.Fprintf(&sb, "`%s%s` %s\n", p, line[0], line[1])
	}
	return sb.String()
}

// stateError turns a playback state error into a reply.
func (b *Bot) stateError(err error) string {
	switch {
	case errors.Is(err, playback.ErrNotPlaying):
		return b.config.GetMessage("not_playing")
	case errors.Is(err, playback.ErrNothingToPause):
		return b.config.GetMessage("nothing_to_pause")
	case errors.Is(err, playback.ErrNothingToResume):
		return b.config.GetMessage("nothing_to_resume")
	default:
		zlog.Warn().Err(err).Msg("discord: command failed")
		return b.config.GetMessage("")
	}
}
