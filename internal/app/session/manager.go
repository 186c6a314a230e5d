// Package session provides the per-guild session manager.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/stagebox/internal/app/filter"
	"github.com/osa030/stagebox/internal/app/notification"
	"github.com/osa030/stagebox/internal/app/playback"
	"github.com/osa030/stagebox/internal/app/queue"
	"github.com/osa030/stagebox/internal/domain/track"
	"github.com/osa030/stagebox/internal/infra/config"
	"github.com/osa030/stagebox/internal/infra/spotify"
)

var (
	ErrInvalidPosition  = errors.New("invalid queue position")
	ErrCannotRemoveHead = errors.New("the current track cannot be removed")
	ErrNothingFound     = errors.New("nothing found")
	ErrClosed           = errors.New("session is closed")
)

// maxConcurrentResolves bounds the yt-dlp processes one guild runs at once.
const maxConcurrentResolves = 4

// Resolver turns a query into playable track metadata.
type Resolver interface {
	Resolve(ctx context.Context, query string) (track.Info, error)
}

// Expander expands a Spotify link into search queries.
type Expander interface {
	Queries(ctx context.Context, link string) ([]string, error)
}

// Engine is a playback engine bound to a voice channel.
type Engine interface {
	playback.Engine
	Connect(channelID string) error
	ChannelID() string
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Engine   Engine
	Resolver Resolver
	Expander Expander // nil disables Spotify links
}

// EnqueueResult describes an accepted request.
type EnqueueResult struct {
	Position int    // 1-based queue position of the first added entry
	Title    string // Query, or a summary for expanded links
	Pending  bool   // Resolution still running
	Count    int    // Number of entries added
}

// Status is a snapshot of a guild session.
type Status struct {
	GuildID        string
	State          playback.State
	Current        *track.Entry
	Upcoming       []track.Entry
	Volume         int
	VoiceChannelID string
}

// Manager manages the playback session of one guild.
type Manager struct {
	guildID string
	config  *config.Config

	// Components
	queue        *queue.Queue
	playback     *playback.Controller
	filterChain  *filter.Chain
	notification *notification.Manager
	engine       Engine
	resolver     Resolver
	expander     Expander

	resolveSem chan struct{}
	resolveWg  sync.WaitGroup
	admitMu    sync.Mutex

	// Channels
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a session manager for a guild and starts its event loop.
func NewManager(guildID string, cfg *config.Config, deps Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	q := queue.New()
	m := &Manager{
		guildID: guildID,
		config:  cfg,
		queue:   q,
		playback: playback.NewController(q, deps.Engine, playback.Config{
			DefaultVolume: cfg.Playback.DefaultVolume,
			EventBuffer:   cfg.Playback.EventBuffer,
		}),
		filterChain:  filter.NewChain(),
		notification: notification.NewManager(),
		engine:       deps.Engine,
		resolver:     deps.Resolver,
		expander:     deps.Expander,
		resolveSem:   make(chan struct{}, maxConcurrentResolves),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	m.setupFilters()

	go m.playbackLoop()
	return m
}

// setupFilters initializes the filter chain from the enabled filters.
func (m *Manager) setupFilters() {
	registered := filter.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !m.config.IsFilterEnabled(name) {
			continue
		}
		f := registered[name](m.queue)
		if err := f.ValidateConfig(m.config.GetFilterSettings(name)); err != nil {
			zlog.Error().Msgf("failed to validate %s config: %v", name, err)
			continue
		}
		m.filterChain.Add(f)
	}
}

// GuildID returns the guild this session belongs to.
func (m *Manager) GuildID() string {
	return m.guildID
}

// Join connects to the given voice channel.
func (m *Manager) Join(channelID string) error {
	return m.engine.Connect(channelID)
}

// Enqueue appends the query (or every track of a Spotify link) to the queue
// and starts resolving in the background. It does not wait for resolution.
func (m *Manager) Enqueue(ctx context.Context, query string, requester track.Requester) (EnqueueResult, error) {
	if m.ctx.Err() != nil {
		return EnqueueResult{}, ErrClosed
	}

	queries := []string{query}
	title := query
	if m.expander != nil && spotify.IsLink(query) {
		expanded, err := m.expander.Queries(ctx, query)
		if err != nil {
			return EnqueueResult{}, errors.Wrap(err, "failed to expand spotify link")
		}
		if len(expanded) == 0 {
			return EnqueueResult{}, ErrNothingFound
		}
		queries = expanded
		if len(expanded) == 1 {
			title = expanded[0]
		}
	}

	result := EnqueueResult{Title: title, Pending: true, Count: len(queries)}
	for i, q := range queries {
		entry, position := m.queue.Enqueue(track.New(q), requester)
		if i == 0 {
			result.Position = position
		}
		m.resolveWg.Add(1)
		go m.resolve(entry)
	}

	zlog.Info().Str("guild", m.guildID).Msgf("session: enqueued: requester=%s query=%s count=%d position=%d",
		requester.Name, query, result.Count, result.Position)

	m.playback.Play()
	return result, nil
}

// resolve resolves one entry, runs the filter chain and settles the track.
func (m *Manager) resolve(entry track.Entry) {
	defer m.resolveWg.Done()

	select {
	case m.resolveSem <- struct{}{}:
		defer func() { <-m.resolveSem }()
	case <-m.ctx.Done():
		_ = entry.Track.MarkFailed(ErrClosed)
		return
	}

	ctx := m.ctx
	if timeout := m.config.Playback.ResolveTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	info, err := m.resolver.Resolve(ctx, entry.Track.Query)
	if err != nil {
		m.reject(entry, err, m.config.GetMessage("track_not_found"))
		return
	}

	code, ok := m.admit(ctx, entry, info)
	if !ok && code == "" {
		return
	}
	if !ok {
		zlog.Info().Str("guild", m.guildID).Msgf("session: track rejected: query=%s code=%s", entry.Track.Query, code)
		m.reject(entry, errors.Newf("rejected by filter: %s", code), m.config.GetMessage(code))
		return
	}

	position := m.positionOf(entry.Seq)
	if position == 0 {
		// Left or removed while resolving
		return
	}
	m.notification.Broadcast(&notification.Notification{
		GuildID:   m.guildID,
		Kind:      notification.KindTrackAdded,
		Title:     info.Title,
		Requester: entry.Requester,
		Position:  position,
	})
}

// admit runs the filter chain and marks the track ready under admitMu, so
// every check sees the outcome of the checks before it.
func (m *Manager) admit(ctx context.Context, entry track.Entry, info track.Info) (string, bool) {
	m.admitMu.Lock()
	defer m.admitMu.Unlock()

	result := m.filterChain.Execute(ctx, filter.Request{Entry: entry, Info: info})
	if !result.Accepted {
		return result.Code, false
	}
	if err := entry.Track.MarkReady(info); err != nil {
		// Failed elsewhere first, e.g. on close
		zlog.Debug().Msgf("session: mark ready: %v", err)
		return "", false
	}
	return "", true
}

// reject fails the track and drops it from the queue. If the controller is
// already waiting on it as head, it observes the failure and moves on.
func (m *Manager) reject(entry track.Entry, cause error, message string) {
	if err := entry.Track.MarkFailed(cause); err != nil {
		return
	}
	m.queue.Remove(entry.Seq)

	zlog.Info().Str("guild", m.guildID).Msgf("session: resolution failed: query=%s err=%v", entry.Track.Query, cause)
	m.notification.Broadcast(&notification.Notification{
		GuildID:   m.guildID,
		Kind:      notification.KindTrackFailed,
		Title:     entry.Track.Query,
		Requester: entry.Requester,
		Message:   message,
		Err:       entry.Track.Err(),
	})
}

func (m *Manager) positionOf(seq uint64) int {
	for i, e := range m.queue.Entries() {
		if e.Seq == seq {
			return i + 1
		}
	}
	return 0
}

// Skip stops the current track.
func (m *Manager) Skip() error {
	return m.playback.Skip()
}

// Pause pauses the current track.
func (m *Manager) Pause() error {
	return m.playback.Pause()
}

// Resume resumes the current track.
func (m *Manager) Resume() error {
	return m.playback.Resume()
}

// SetVolume sets the volume in percent and returns the applied value.
func (m *Manager) SetVolume(percent int) int {
	return m.playback.SetVolume(percent)
}

// Volume returns the volume in percent.
func (m *Manager) Volume() int {
	return m.playback.Volume()
}

// Leave stops playback, clears the queue and disconnects from voice.
func (m *Manager) Leave() error {
	err := m.playback.Leave()
	m.notification.Broadcast(&notification.Notification{
		GuildID: m.guildID,
		Kind:    notification.KindLeft,
	})
	return err
}

// Remove removes the entry at a 1-based position. The head is playing or
// about to play; it is skipped, not removed.
func (m *Manager) Remove(position int) (track.Entry, error) {
	if position == 1 {
		return track.Entry{}, ErrCannotRemoveHead
	}
	entry, ok := m.queue.RemoveAt(position, 2)
	if !ok {
		return track.Entry{}, ErrInvalidPosition
	}
	zlog.Info().Str("guild", m.guildID).Msgf("session: removed position %d: %s", position, entry.Track.DisplayTitle())
	return entry, nil
}

// Status returns a snapshot of the session.
func (m *Manager) Status() Status {
	status := Status{
		GuildID:        m.guildID,
		State:          m.playback.State(),
		Volume:         m.playback.Volume(),
		VoiceChannelID: m.engine.ChannelID(),
	}

	var currentSeq uint64
	if current, ok := m.playback.Current(); ok {
		status.Current = &current
		currentSeq = current.Seq
	}
	for _, e := range m.queue.Entries() {
		if e.Seq != currentSeq {
			status.Upcoming = append(status.Upcoming, e)
		}
	}
	return status
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// Done is closed when the event loop has stopped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close stops playback and releases the voice connection.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if err := m.playback.Leave(); err != nil {
			zlog.Warn().Str("guild", m.guildID).Msgf("session: leave on close: %v", err)
		}
		m.cancel()
		m.resolveWg.Wait()
		m.playback.Close()
		select {
		case <-m.done:
		case <-time.After(time.Second):
		}
		m.notification.Close()
	})
}

func (m *Manager) playbackLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback loop panicked: %v", r)
			// Restart loop to keep the guild responsive
			zlog.Info().Msg("restarting playback loop")
			go m.playbackLoop()
			return
		}
		close(m.done)
	}()

	events := m.playback.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.handlePlaybackEvent(event)
		}
	}
}

func (m *Manager) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Str("guild", m.guildID).Msgf("session: playback event: %s state=%s", event.Type, event.State)

	switch event.Type {
	case playback.EventTrackStarted:
		m.notification.Broadcast(&notification.Notification{
			GuildID:   m.guildID,
			Kind:      notification.KindNowPlaying,
			Title:     event.Entry.Track.DisplayTitle(),
			Requester: event.Entry.Requester,
		})
	case playback.EventTrackSkipped:
		m.notification.Broadcast(&notification.Notification{
			GuildID:   m.guildID,
			Kind:      notification.KindSkipped,
			Title:     event.Entry.Track.DisplayTitle(),
			Requester: event.Entry.Requester,
		})
	case playback.EventQueueEmpty:
		m.notification.Broadcast(&notification.Notification{
			GuildID: m.guildID,
			Kind:    notification.KindQueueComplete,
		})
	case playback.EventEngineError:
		m.notification.Broadcast(&notification.Notification{
			GuildID: m.guildID,
			Kind:    notification.KindEngineError,
			Title:   event.Entry.Track.DisplayTitle(),
			Message: m.config.GetMessage("engine_error"),
			Err:     event.Err,
		})
	case playback.EventTrackEnded:
		if event.Err != nil {
			zlog.Warn().Str("guild", m.guildID).Msgf("session: track ended with error: %v", event.Err)
		}
	case playback.EventResolutionFailed:
		// Reported by resolve when the track failed
	case playback.EventVolumeChanged, playback.EventStateChanged:
	}
}
