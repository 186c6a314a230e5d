package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/stagebox/internal/domain/track"
)

func TestDuplicateTrackFilter_SameURL(t *testing.T) {
	q := &mockQueue{}
	q.add("user1", track.Info{
		Title:      "Bohemian Rhapsody (Official Video)",
		Uploader:   "Queen Official",
		WebpageURL: "https://www.youtube.com/watch?v=fJ9rUzIMcZQ",
	})
	entry := q.addPending("user2", "bohemian rhapsody")

	filter := NewDuplicateTrackFilter(q)
	result := filter.Check(context.Background(), Request{
		Entry: entry,
		Info: track.Info{
			Title:      "Something else entirely",
			WebpageURL: "https://www.youtube.com/watch?v=fJ9rUzIMcZQ",
		},
	})

	assert.False(t, result.Accepted)
	assert.Equal(t, "duplicate_track", result.Code)
}

func TestDuplicateTrackFilter_IgnoresItself(t *testing.T) {
	q := &mockQueue{}
	info := track.Info{Title: "Song", Uploader: "Band", WebpageURL: "https://example.com/1"}
	entry := q.add("user1", info)

	filter := NewDuplicateTrackFilter(q)
	result := filter.Check(context.Background(), Request{Entry: entry, Info: info})
	assert.True(t, result.Accepted)
}

func TestDuplicateTrackFilter_PendingEntries(t *testing.T) {
	info := track.Info{Title: "Song", WebpageURL: "https://example.com/1"}

	t.Run("later identical request is rejected", func(t *testing.T) {
		q := &mockQueue{}
		q.addPending("user1", "https://example.com/1")
		entry := q.addPending("user2", "https://EXAMPLE.com/1 ")

		result := NewDuplicateTrackFilter(q).Check(context.Background(), Request{Entry: entry, Info: info})
		assert.False(t, result.Accepted)
		assert.Equal(t, "duplicate_track", result.Code)
	})

	t.Run("earlier request is not rejected by a later one", func(t *testing.T) {
		q := &mockQueue{}
		entry := q.addPending("user1", "https://example.com/1")
		q.addPending("user2", "https://example.com/1")

		result := NewDuplicateTrackFilter(q).Check(context.Background(), Request{Entry: entry, Info: info})
		assert.True(t, result.Accepted)
	})

	t.Run("different pending query is not compared yet", func(t *testing.T) {
		q := &mockQueue{}
		q.addPending("user1", "song search terms")
		entry := q.addPending("user2", "https://example.com/1")

		result := NewDuplicateTrackFilter(q).Check(context.Background(), Request{Entry: entry, Info: info})
		assert.True(t, result.Accepted)
	})
}

func TestDuplicateTrackFilter_VersionDetection(t *testing.T) {
	tests := []struct {
		name         string
		queued       track.Info
		requested    track.Info
		shouldReject bool
		description  string
	}{
		{
			name:         "Standard remaster pattern",
			queued:       track.Info{Title: "Bohemian Rhapsody", Uploader: "Queen"},
			requested:    track.Info{Title: "Bohemian Rhapsody - 2011 Remaster", Uploader: "Queen"},
			shouldReject: true,
			description:  "Should detect '- 2011 Remaster' as duplicate",
		},
		{
			name:         "Remastered in parentheses",
			queued:       track.Info{Title: "Yesterday", Uploader: "The Beatles"},
			requested:    track.Info{Title: "Yesterday (Remastered 2023)", Uploader: "the beatles"},
			shouldReject: true,
			description:  "Should detect '(Remastered 2023)' as duplicate",
		},
		{
			name:         "Official video upload",
			queued:       track.Info{Title: "Hotel California", Uploader: "Eagles"},
			requested:    track.Info{Title: "Hotel California (Official Audio)", Uploader: "Eagles"},
			shouldReject: true,
			description:  "Should detect official audio upload as duplicate",
		},
		{
			name:         "Cover song - different uploader",
			queued:       track.Info{Title: "Yesterday", Uploader: "The Beatles"},
			requested:    track.Info{Title: "Yesterday", Uploader: "Paul McCartney"},
			shouldReject: false,
			description:  "Should allow cover by different uploader",
		},
		{
			name:         "Different songs - similar names",
			queued:       track.Info{Title: "Love", Uploader: "John Lennon"},
			requested:    track.Info{Title: "Love Song", Uploader: "John Lennon"},
			shouldReject: false,
			description:  "Should allow different songs",
		},
		{
			name:         "Radio Edit version",
			queued:       track.Info{Title: "Stairway to Heaven", Uploader: "Led Zeppelin"},
			requested:    track.Info{Title: "Stairway to Heaven (Radio Edit)", Uploader: "Led Zeppelin"},
			shouldReject: true,
			description:  "Should detect radio edit as duplicate",
		},
		{
			name:         "Remix version - should be allowed",
			queued:       track.Info{Title: "Le Freak", Uploader: "CHIC"},
			requested:    track.Info{Title: "Le Freak (Oliver Heldens Remix)", Uploader: "CHIC"},
			shouldReject: false,
			description:  "Should allow remix version",
		},
		{
			name:         "Unknown uploader",
			queued:       track.Info{Title: "Song"},
			requested:    track.Info{Title: "Song"},
			shouldReject: false,
			description:  "Should not guess without uploader information",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &mockQueue{}
			q.add("user1", tt.queued)
			entry := q.addPending("user2", tt.requested.Title)

			filter := NewDuplicateTrackFilter(q)
			result := filter.Check(context.Background(), Request{Entry: entry, Info: tt.requested})

			if tt.shouldReject {
				assert.False(t, result.Accepted, tt.description)
				assert.Equal(t, "duplicate_track", result.Code)
			} else {
				assert.True(t, result.Accepted, tt.description)
			}
		})
	}
}

func TestDuplicateTrackFilter_EmptyQueue(t *testing.T) {
	filter := NewDuplicateTrackFilter(&mockQueue{})

	result := filter.Check(context.Background(), Request{
		Info: track.Info{Title: "Any Song", Uploader: "Any Artist"},
	})

	assert.True(t, result.Accepted, "Should accept any track when queue is empty")
}

func TestNormalizeTrackName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bohemian Rhapsody", "bohemian rhapsody"},
		{"Bohemian Rhapsody - 2011 Remaster", "bohemian rhapsody"},
		{"Yesterday (Remastered 2023)", "yesterday"},
		{"Hotel California [Remastered]", "hotel california"},
		{"Stairway to Heaven (Radio Edit)", "stairway to heaven"},
		{"Imagine - Live", "imagine"},
		{"Let It Be (Single Version)", "let it be"},
		{"Hey Jude - Remastered Version", "hey jude"},
		{"Africa (Official Music Video)", "africa"},
		{"Come Together (2019 Mix)", "come together (2019 mix)"},
		{"   Extra   Spaces   ", "extra spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := normalizeTrackName(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
