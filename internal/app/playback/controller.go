package playback

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/stagebox/internal/app/queue"
	"github.com/osa030/stagebox/internal/domain/track"
)

// Errors
var (
	ErrNotPlaying      = errors.New("not playing")
	ErrNothingToPause  = errors.New("nothing to pause")
	ErrNothingToResume = errors.New("nothing to resume")
	ErrEngineStart     = errors.New("engine start failed")
)

// Volume limits in percent.
const (
	DefaultVolume = 50
	MaxVolume     = 200
)

// Config holds controller configuration.
type Config struct {
	DefaultVolume int // Initial volume percent (0-200)
	EventBuffer   int // Capacity of the event channel
}

// activeSession is the engine session currently owned by the controller.
type activeSession struct {
	id         uint64
	entry      track.Entry
	handle     Session
	stopping   bool // Skip already requested
	suppressed bool // Leave requested; no longer controllable and the completion must not advance
}

// sessionEnded is posted by the engine callback and consumed by the loop.
type sessionEnded struct {
	id      uint64
	outcome Outcome
	err     error
}

// Controller plays the head of a queue through an engine, one session at a
// time. The completion of a session is the only thing that removes the head.
type Controller struct {
	mu sync.Mutex

	queue  *queue.Queue
	engine Engine

	// Playback state
	state         State
	volume        int
	session       *activeSession
	nextSessionID uint64
	epoch         uint64 // Incremented by Leave; invalidates in-flight starts
	startCancel   context.CancelFunc
	closed        bool

	// Channels
	eventCh chan Event
	endedCh chan sessionEnded
	wakeCh  chan struct{}

	// Context
	ctx       context.Context
	cancel    context.CancelFunc
	loopDone  chan struct{}
	closeOnce sync.Once
}

// NewController creates a controller for q and starts its event loop.
func NewController(q *queue.Queue, engine Engine, config Config) *Controller {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 32
	}
	if config.DefaultVolume == 0 {
		config.DefaultVolume = DefaultVolume
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		queue:    q,
		engine:   engine,
		state:    StateIdle,
		volume:   clampVolume(config.DefaultVolume),
		eventCh:  make(chan Event, config.EventBuffer),
		endedCh:  make(chan sessionEnded, 16),
		wakeCh:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Play asks the controller to start the head of the queue if it is idle.
// It never blocks; resolution and engine start happen on the event loop.
func (c *Controller) Play() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
		// A wake-up is already pending
	}
}

// Skip stops the current session. The queue advances when the engine
// reports the end of the session.
func (c *Controller) Skip() error {
	c.mu.Lock()
	s := c.session
	if s == nil || s.suppressed || (c.state != StatePlaying && c.state != StatePaused) {
		c.mu.Unlock()
		return ErrNotPlaying
	}
	if s.stopping {
		c.mu.Unlock()
		return nil
	}
	s.stopping = true
	entry := s.entry
	c.sendEventLocked(Event{
		Type:   EventTrackSkipped,
		Entry:  &entry,
		State:  c.state,
		Volume: c.volume,
	})
	c.mu.Unlock()

	s.handle.Stop()
	return nil
}

// Pause pauses the current session.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.suppressed || c.state != StatePlaying {
		return ErrNothingToPause
	}
	c.session.handle.SetPaused(true)
	c.state = StatePaused

	entry := c.session.entry
	c.sendEventLocked(Event{
		Type:   EventStateChanged,
		Entry:  &entry,
		State:  c.state,
		Volume: c.volume,
	})
	return nil
}

// Resume resumes a paused session.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.suppressed || c.state != StatePaused {
		return ErrNothingToResume
	}
	c.session.handle.SetPaused(false)
	c.state = StatePlaying

	entry := c.session.entry
	c.sendEventLocked(Event{
		Type:   EventStateChanged,
		Entry:  &entry,
		State:  c.state,
		Volume: c.volume,
	})
	return nil
}

// SetVolume sets the volume in percent, clamped to [0, MaxVolume], and
// returns the applied value. It applies to the current session immediately
// and to every session started afterwards.
func (c *Controller) SetVolume(percent int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.volume = clampVolume(percent)
	var entry *track.Entry
	if c.session != nil {
		c.session.handle.SetVolume(gain(c.volume))
		e := c.session.entry
		entry = &e
	}
	c.sendEventLocked(Event{
		Type:   EventVolumeChanged,
		Entry:  entry,
		State:  c.state,
		Volume: c.volume,
	})
	return c.volume
}

// Leave stops playback, clears the queue and releases the destination.
// The completion of the stopped session does not advance the queue.
func (c *Controller) Leave() error {
	c.mu.Lock()
	c.epoch++
	if c.startCancel != nil {
		c.startCancel()
		c.startCancel = nil
	}
	if c.state == StateStarting {
		c.state = StateIdle
	}
	var handle Session
	if c.session != nil {
		c.session.suppressed = true
		handle = c.session.handle
	}
	removed := c.queue.Clear()
	c.mu.Unlock()

	zlog.Debug().Msgf("playback: leaving: cleared=%d active=%v", len(removed), handle != nil)

	if handle != nil {
		handle.Stop()
	}
	if err := c.engine.Release(); err != nil {
		return errors.Wrap(err, "failed to release playback destination")
	}
	return nil
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the entry of the active session.
func (c *Controller) Current() (track.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return track.Entry{}, false
	}
	return c.session.entry, true
}

// Volume returns the volume in percent.
func (c *Controller) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// Close stops the event loop and the active session, and closes the event
// channel.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.loopDone

		c.mu.Lock()
		var handle Session
		if c.session != nil {
			handle = c.session.handle
			c.session = nil
		}
		c.state = StateIdle
		c.closed = true
		close(c.eventCh)
		c.mu.Unlock()

		if handle != nil {
			handle.Stop()
		}
	})
}

// loop is the only goroutine that starts sessions and advances the queue.
func (c *Controller) loop() {
	defer close(c.loopDone)

	for {
		select {
		case <-c.ctx.Done():
			return
		case ended := <-c.endedCh:
			c.onCompletion(c.ctx, ended)
		case <-c.wakeCh:
			c.ensurePlaying(c.ctx)
		}
	}
}

// postEnded delivers an engine completion to the loop.
func (c *Controller) postEnded(ended sessionEnded) {
	select {
	case c.endedCh <- ended:
	case <-c.ctx.Done():
	}
}

// onCompletion handles the end of a session. Completions for sessions that
// are no longer active are discarded, so duplicates advance at most once.
func (c *Controller) onCompletion(ctx context.Context, ended sessionEnded) {
	c.mu.Lock()
	s := c.session
	if s == nil || s.id != ended.id {
		c.mu.Unlock()
		zlog.Debug().Msgf("playback: discarding stale completion: session=%d outcome=%s", ended.id, ended.outcome)
		return
	}
	c.session = nil
	c.state = StateIdle

	if s.suppressed {
		// Leave already cleared the queue; only entries enqueued since then remain
		c.sendEventLocked(Event{
			Type:    EventTrackEnded,
			Entry:   &s.entry,
			State:   c.state,
			Outcome: ended.outcome,
			Volume:  c.volume,
			Err:     ended.err,
		})
		pending := !c.queue.IsEmpty()
		c.mu.Unlock()
		if pending {
			c.ensurePlaying(ctx)
		}
		return
	}

	// The finished entry is the head unless something removed it already
	c.queue.Remove(s.entry.Seq)

	zlog.Debug().Msgf("playback: track ended: track=%s outcome=%s remaining=%d",
		s.entry.Track.DisplayTitle(), ended.outcome, c.queue.Len())

	c.sendEventLocked(Event{
		Type:    EventTrackEnded,
		Entry:   &s.entry,
		State:   c.state,
		Outcome: ended.outcome,
		Volume:  c.volume,
		Err:     ended.err,
	})

	if c.queue.IsEmpty() {
		c.sendEventLocked(Event{
			Type:   EventQueueEmpty,
			State:  c.state,
			Volume: c.volume,
		})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.ensurePlaying(ctx)
}

// startResult is the outcome of one attempt to start the head.
type startResult int

const (
	startOK      startResult = iota // Session started
	startDropped                    // Head failed to resolve and was removed
	startAborted                    // Engine error, Leave, or Close
)

// ensurePlaying starts the head if the controller is idle. Each dropped
// head shortens the queue, so the loop ends even if every entry fails.
func (c *Controller) ensurePlaying(ctx context.Context) {
	for {
		c.mu.Lock()
		if c.closed || c.state != StateIdle {
			c.mu.Unlock()
			return
		}
		head, ok := c.queue.PeekHead()
		if !ok {
			c.mu.Unlock()
			return
		}
		c.state = StateStarting
		epoch := c.epoch
		startCtx, cancel := context.WithCancel(ctx)
		c.startCancel = cancel
		c.mu.Unlock()

		result := c.startHead(startCtx, epoch, head)

		c.mu.Lock()
		if c.epoch == epoch {
			c.startCancel = nil
		}
		c.mu.Unlock()
		cancel()

		if result != startDropped {
			return
		}
	}
}

// startHead waits for the head to resolve and starts an engine session for
// it. No lock is held while waiting or while the engine starts.
func (c *Controller) startHead(ctx context.Context, epoch uint64, head track.Entry) startResult {
	err := head.Track.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		return c.abortStart(epoch)
	}

	if err != nil {
		c.queue.Remove(head.Seq)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epoch != epoch {
			return startAborted
		}
		c.state = StateIdle
		zlog.Info().Msgf("playback: dropping unresolved track: query=%s err=%v", head.Track.Query, err)
		c.sendEventLocked(Event{
			Type:   EventResolutionFailed,
			Entry:  &head,
			State:  c.state,
			Volume: c.volume,
			Err:    err,
		})
		if c.queue.IsEmpty() {
			c.sendEventLocked(Event{
				Type:   EventQueueEmpty,
				State:  c.state,
				Volume: c.volume,
			})
		}
		return startDropped
	}

	c.mu.Lock()
	if c.epoch != epoch || c.closed {
		c.mu.Unlock()
		return startAborted
	}
	c.nextSessionID++
	id := c.nextSessionID
	volume := c.volume
	c.mu.Unlock()

	handle, err := c.engine.Start(ctx, head.Track, gain(volume), func(outcome Outcome, err error) {
		c.postEnded(sessionEnded{id: id, outcome: outcome, err: err})
	})

	c.mu.Lock()
	if err != nil {
		defer c.mu.Unlock()
		if c.epoch != epoch {
			return startAborted
		}
		c.state = StateIdle
		err = errors.Mark(errors.Wrapf(err, "failed to start %s", head.Track.DisplayTitle()), ErrEngineStart)
		zlog.Warn().Msgf("playback: %v", err)
		c.sendEventLocked(Event{
			Type:   EventEngineError,
			Entry:  &head,
			State:  c.state,
			Volume: c.volume,
			Err:    err,
		})
		return startAborted
	}

	if c.epoch != epoch || c.closed {
		// Left while the engine was starting; its completion will be stale
		c.mu.Unlock()
		handle.Stop()
		return startAborted
	}

	c.session = &activeSession{id: id, entry: head, handle: handle}
	c.state = StatePlaying
	if c.volume != volume {
		handle.SetVolume(gain(c.volume))
	}

	zlog.Info().Msgf("playback: now playing: track=%s session=%d volume=%d", head.Track.DisplayTitle(), id, c.volume)
	c.sendEventLocked(Event{
		Type:   EventTrackStarted,
		Entry:  &head,
		State:  c.state,
		Volume: c.volume,
	})
	c.mu.Unlock()
	return startOK
}

// abortStart returns to Idle after a cancelled start, unless Leave already did.
func (c *Controller) abortStart(epoch uint64) startResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch == epoch && c.state == StateStarting {
		c.state = StateIdle
	}
	return startAborted
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	default:
		zlog.Warn().Msgf("playback: event dropped (channel full): type=%s", e.Type)
	}
}

func clampVolume(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > MaxVolume {
		return MaxVolume
	}
	return percent
}

// gain converts a volume percent to a linear gain.
func gain(percent int) float64 {
	return float64(percent) / 100
}
