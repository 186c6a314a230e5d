package discord

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/stagebox/internal/app/notification"
)

// announcer posts session notifications to the guild's active text channel.
type announcer struct {
	sender Sender

	mu        sync.RWMutex
	channelID string
}

func newAnnouncer(sender Sender) *announcer {
	return &announcer{sender: sender}
}

// setChannel sets the text channel announcements go to.
func (a *announcer) setChannel(channelID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channelID = channelID
}

func (a *announcer) channel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.channelID
}

// Send implements notification.Stream.
func (a *announcer) Send(n *notification.Notification) error {
	text := formatNotification(n)
	channelID := a.channel()
	if text == "" || channelID == "" {
		return nil
	}
	if _, err := a.sender.ChannelMessageSend(channelID, text); err != nil {
		return errors.Wrapf(err, "failed to announce %s", n.Kind)
	}
	return nil
}

// formatNotification renders a notification as a chat message. Kinds that
// the command replies already cover render as "".
func formatNotification(n *notification.Notification) string {
	switch n.Kind {
	case notification.KindTrackAdded:
		// The head starts right away and gets a now-playing message instead
		if n.Position <= 1 {
			return ""
		}
		return fmt.Sprintf("%s **added to the queue**", n.Title)
	case notification.KindNowPlaying:
		return fmt.Sprintf("**Now playing:** %s", n.Title)
	case notification.KindTrackFailed, notification.KindEngineError:
		if n.Title == "" {
			return n.Message
		}
		return fmt.Sprintf("%s (%s)", n.Message, n.Title)
	case notification.KindQueueComplete:
		return "**Queue complete.**"
	default:
		return ""
	}
}
