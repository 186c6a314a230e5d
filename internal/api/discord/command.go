package discord

import (
	"strings"
	"unicode"
)

// command is a parsed chat command.
type command struct {
	name string
	args string
}

// aliases maps short names to command names.
var aliases = map[string]string{
	"p":       "play",
	"s":       "skip",
	"next":    "skip",
	"q":       "queue",
	"now":     "np",
	"vol":     "volume",
	"stop":    "leave",
	"rm":      "remove",
	"connect": "join",
}

// parseCommand extracts a command from message content. A command starts
// with prefix or with a mention of the bot.
func parseCommand(content, prefix, botID string) (command, bool) {
	content = strings.TrimSpace(content)

	if rest, ok := stripMention(content, botID); ok {
		content = rest
	} else if prefix != "" && strings.HasPrefix(content, prefix) {
		content = content[len(prefix):]
	} else {
		return command{}, false
	}

	content = strings.TrimLeftFunc(content, unicode.IsSpace)
	name, args := content, ""
	if i := strings.IndexFunc(content, unicode.IsSpace); i >= 0 {
		name, args = content[:i], strings.TrimSpace(content[i:])
	}
	if name == "" {
		return command{}, false
	}

	name = strings.ToLower(name)
	if target, ok := aliases[name]; ok {
		name = target
	}
	return command{name: name, args: args}, true
}

// stripMention removes a leading <@id> or <@!id> mention.
func stripMention(content, botID string) (string, bool) {
	if botID == "" {
		return "", false
	}
	for _, mention := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if strings.HasPrefix(content, mention) {
			return content[len(mention):], true
		}
	}
	return "", false
}
