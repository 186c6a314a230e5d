package discord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    command
		wantOK  bool
	}{
		{name: "prefix", content: "!play never gonna give you up", want: command{name: "play", args: "never gonna give you up"}, wantOK: true},
		{name: "no args", content: "!skip", want: command{name: "skip"}, wantOK: true},
		{name: "upper case", content: "!PAUSE", want: command{name: "pause"}, wantOK: true},
		{name: "alias", content: "!p https://youtu.be/x", want: command{name: "play", args: "https://youtu.be/x"}, wantOK: true},
		{name: "surrounding space", content: "  !volume   80  ", want: command{name: "volume", args: "80"}, wantOK: true},
		{name: "mention", content: "<@42> play song", want: command{name: "play", args: "song"}, wantOK: true},
		{name: "nickname mention", content: "<@!42>queue", want: command{name: "queue"}, wantOK: true},
		{name: "other mention", content: "<@7> play song", wantOK: false},
		{name: "plain text", content: "play song", wantOK: false},
		{name: "prefix only", content: "!", wantOK: false},
		{name: "prefix and space", content: "! ", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseCommand(tt.content, "!", "42")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseCommand_NoBotIDYet(t *testing.T) {
	_, ok := parseCommand("<@42> play song", "!", "")
	assert.False(t, ok)
}

func TestParseCommand_CustomPrefix(t *testing.T) {
	got, ok := parseCommand("sb!np", "sb!", "")
	assert.True(t, ok)
	assert.Equal(t, "np", got.name)

	_, ok = parseCommand("!np", "sb!", "")
	assert.False(t, ok)
}
