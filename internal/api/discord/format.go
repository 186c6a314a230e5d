package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/osa030/stagebox/internal/app/playback"
	"github.com/osa030/stagebox/internal/app/session"
	"github.com/osa030/stagebox/internal/domain/track"
)

// maxQueueLines bounds the upcoming entries listed by the queue command.
const maxQueueLines = 10

func formatNowPlaying(status session.Status) string {
	e := status.Current
	line := fmt.Sprintf("**Now playing:** %s", entryLine(*e))
	if status.State == playback.StatePaused {
		line += " (paused)"
	}
	return line
}

func formatQueue(status session.Status, emptyMessage string) string {
	if status.Current == nil && len(status.Upcoming) == 0 {
		return emptyMessage
	}

	var sb strings.Builder
	if status.Current != nil {
		sb.WriteString(formatNowPlaying(status))
		sb.WriteString("\n")
	}
	// Upcoming entries start at position 2 while something is playing
	offset := 1
	if status.Current != nil {
		offset = 2
	}
	for i, e := range status.Upcoming {
		if i == maxQueueLines {
			fmt.Fprintf(&sb, "... and %d more\n", len(status.Upcoming)-maxQueueLines)
			break
		}
		fmt.Fprintf(&sb, "`%d.` %s\n", i+offset, entryLine(e))
	}
	fmt.Fprintf(&sb, "**Volume:** %d%%", status.Volume)
	return sb.String()
}

func entryLine(e track.Entry) string {
	line := e.Track.DisplayTitle()
	switch e.Track.Status() {
	case track.StatusPending:
		line += " (resolving)"
	case track.StatusReady:
		if d := e.Track.Info().Duration; d > 0 {
			line += " [" + formatDuration(d) + "]"
		}
	}
	if e.Requester.Name != "" {
		line += " - " + e.Requester.Name
	}
	return line
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
