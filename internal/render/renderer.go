package render

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/capitalize-ai/player-messaging/internal/model"
)

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

var (
	supported = []language.Tag{language.English, language.Czech}
	matcher   = language.NewMatcher(supported)
)

// NewLocalizer returns a printer for the closest supported locale.
func NewLocalizer(locale string) Localizer {
	return message.NewPrinter(MatchLocale(locale))
}

// MatchLocale maps a player locale to a supported tag, English by default.
func MatchLocale(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return language.English
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return language.English
	}
	return supported[index]
}

// Text renders a resolved key.
func Text(loc Localizer, key Key) string {
	return localizeWithFallback(loc, string(key), englishText[key])
}

// Message renders msg for viewerID inside conv. Human messages are returned
// as stored.
func Message(loc Localizer, msg model.Message, conv model.Conversation, viewerID string) string {
	if !msg.IsSystem() {
		return msg.Content
	}
	return Text(loc, ResolveMessage(msg, conv, viewerID))
}

// DigestSubject renders the subject line of a digest email.
func DigestSubject(loc Localizer, unread, pending int) string {
	switch {
	case unread > 0 && pending > 0:
		return localize(loc, "messaging.digest.subject_messages_and_requests", unread, pending)
	case pending > 0:
		return localize(loc, "messaging.digest.subject_requests", pending)
	default:
		return localize(loc, "messaging.digest.subject_messages", unread)
	}
}

func localize(loc Localizer, key string, args ...any) string {
	if loc == nil {
		loc = englishPrinter
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value != "" && value != key {
		return value
	}
	if fallback != "" {
		return fallback
	}
	return englishText[KeyUnknown]
}
