package voice

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/stagebox/internal/app/playback"
)

// stream wires a session to its PCM source and Opus sink.
type stream struct {
	pcm      io.Reader
	encode   func(pcm []int16) ([]byte, error)
	out      chan<- []byte
	speaking func(bool) error
	kill     func()
	wait     func() error
}

// session is one playing track. It implements playback.Session.
type session struct {
	stream
	onEnd func(playback.Outcome, error)

	gain     atomic.Uint64 // math.Float64bits
	paused   atomic.Bool
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func newSession(st stream, volume float64, onEnd func(playback.Outcome, error)) *session {
	s := &session{
		stream: st,
		onEnd:  onEnd,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	s.SetVolume(volume)
	return s
}

// Stop ends the session. Safe to call more than once.
func (s *session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.kill != nil {
			s.kill()
		}
	})
}

// SetPaused gates the send loop.
func (s *session) SetPaused(paused bool) {
	s.paused.Store(paused)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// SetVolume sets the linear gain applied to following frames.
func (s *session) SetVolume(gain float64) {
	s.gain.Store(math.Float64bits(gain))
}

func (s *session) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *session) run() {
	outcome, err := s.loop()

	if outcome != playback.OutcomeFinished && s.kill != nil {
		s.kill()
	}
	if s.wait != nil {
		if werr := s.wait(); werr != nil && outcome == playback.OutcomeFinished {
			outcome, err = playback.OutcomeErrored, errors.Wrap(werr, "ffmpeg exited")
		}
	}
	if s.stopped() {
		outcome, err = playback.OutcomeStopped, nil
	}
	s.setSpeaking(false)

	s.onEnd(outcome, err)
}

func (s *session) loop() (playback.Outcome, error) {
	raw := make([]byte, frameSize*channels*2)
	pcm := make([]int16, frameSize*channels)
	speaking := false

	for {
		if s.stopped() {
			return playback.OutcomeStopped, nil
		}

		if s.paused.Load() {
			if speaking {
				s.setSpeaking(false)
				speaking = false
			}
			select {
			case <-s.stop:
				return playback.OutcomeStopped, nil
			case <-s.wake:
			}
			continue
		}

		n, err := io.ReadFull(s.pcm, raw)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			if errors.Is(err, io.EOF) {
				return playback.OutcomeFinished, nil
			}
			if s.stopped() {
				return playback.OutcomeStopped, nil
			}
			return playback.OutcomeErrored, errors.Wrap(err, "failed to read pcm")
		}
		// Pad a short final frame with silence
		for i := n; i < len(raw); i++ {
			raw[i] = 0
		}

		for i := range pcm {
			pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		}
		applyVolume(pcm, math.Float64frombits(s.gain.Load()))

		packet, encErr := s.encode(pcm)
		if encErr != nil {
			return playback.OutcomeErrored, errors.Wrap(encErr, "failed to encode opus")
		}

		if !speaking {
			s.setSpeaking(true)
			speaking = true
		}

		select {
		case s.out <- packet:
		case <-s.stop:
			return playback.OutcomeStopped, nil
		}

		if err != nil {
			// Short read: that was the last frame
			return playback.OutcomeFinished, nil
		}
	}
}

func (s *session) setSpeaking(on bool) {
	if s.speaking == nil {
		return
	}
	if err := s.speaking(on); err != nil {
		zlog.Debug().Err(err).Msgf("voice: speaking(%t) failed", on)
	}
}

// applyVolume scales samples by gain in place, clipping to the int16 range.
func applyVolume(pcm []int16, gain float64) {
	if gain == 1 {
		return
	}
	for i, v := range pcm {
		scaled := float64(v) * gain
		switch {
		case scaled > math.MaxInt16:
			pcm[i] = math.MaxInt16
		case scaled < math.MinInt16:
			pcm[i] = math.MinInt16
		default:
			pcm[i] = int16(scaled)
		}
	}
}
