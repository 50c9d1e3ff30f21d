package render

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/capitalize-ai/player-messaging/internal/model"
)

func TestResolveVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		typ         model.SystemMessageType
		target      string
		viewer      string
		counterpart string
		want        Key
	}{
		{"reserved for viewer", model.SystemListingReserved, "p1", "p1", "p2", KeyListingReservedForYou},
		{"reserved for counterpart", model.SystemListingReserved, "p1", "p2", "p1", KeyListingReservedForThisPuzzler},
		{"reserved for someone else", model.SystemListingReserved, "p1", "p2", "p3", KeyListingReservedForSomeoneElse},
		{"reserved unknown conversation", model.SystemListingReserved, "p1", "p2", "", KeyListingReservedForSomeoneElse},
		{"reserved without target", model.SystemListingReserved, "", "p1", "p2", KeyListingReserved},
		{"reservation removed", model.SystemListingReservationRemoved, "", "p1", "p2", KeyListingReservationRemoved},
		{"reservation removed ignores target", model.SystemListingReservationRemoved, "p1", "p1", "p2", KeyListingReservationRemoved},
		{"sold to viewer", model.SystemListingSold, "p1", "p1", "p2", KeyListingSoldToYou},
		{"sold to counterpart", model.SystemListingSold, "p1", "p2", "p1", KeyListingSoldToThisPuzzler},
		{"sold to someone else", model.SystemListingSold, "p1", "p2", "p3", KeyListingSoldToSomeoneElse},
		{"sold without target", model.SystemListingSold, "", "p1", "p2", KeyListingSold},
		{"unknown type", model.SystemMessageType("listing_exploded"), "", "p1", "p2", KeyUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Resolve(tt.typ, tt.target, tt.viewer, tt.counterpart))
		})
	}
}

func TestMessageIsViewerPure(t *testing.T) {
	t.Parallel()

	conv := model.Conversation{ID: "c1", InitiatorID: "buyer", RecipientID: "seller", Status: model.StatusAccepted}
	msg := model.Message{ID: "m1", ConversationID: "c1", SystemType: model.SystemListingReserved, SystemTargetID: "buyer"}
	loc := NewLocalizer("en")

	first := Message(loc, msg, conv, "buyer")
	second := Message(loc, msg, conv, "buyer")
	assert.Equal(t, first, second)
	assert.Equal(t, "This listing has been reserved for you.", first)

	assert.Equal(t, "This listing has been reserved for this puzzler.", Message(loc, msg, conv, "seller"))

	other := model.Conversation{ID: "c2", InitiatorID: "bystander", RecipientID: "seller", Status: model.StatusAccepted}
	assert.Equal(t, "This listing has been reserved for someone else.", Message(loc, msg, other, "bystander"))
}

func TestMessageReturnsHumanContent(t *testing.T) {
	t.Parallel()

	msg := model.Message{SenderID: "a", Content: "Hi there"}
	assert.Equal(t, "Hi there", Message(NewLocalizer("cs"), msg, model.Conversation{}, "b"))
}

func TestCzechCatalog(t *testing.T) {
	t.Parallel()

	loc := NewLocalizer("cs-CZ")
	assert.Equal(t, "Tato nabídka byla prodána vám.", Text(loc, KeyListingSoldToYou))
	assert.Equal(t, "Máte 3 nepřečtených zpráv", DigestSubject(loc, 3, 0))
}

func TestMatchLocale(t *testing.T) {
	t.Parallel()

	assert.Equal(t, language.English, MatchLocale(""))
	assert.Equal(t, language.English, MatchLocale("not a locale!"))
	assert.Equal(t, language.Czech, MatchLocale("cs"))
	assert.Equal(t, language.English, MatchLocale("en-GB"))
}

func TestTextFallsBackToEnglish(t *testing.T) {
	t.Parallel()

	loc := fakeLocalizer{values: map[string]string{}}
	assert.Equal(t, "This listing has been sold.", Text(loc, KeyListingSold))
	assert.Equal(t, "Conversation update.", Text(loc, Key("messaging.system.missing")))
	assert.Equal(t, "This listing has been sold.", Text(nil, KeyListingSold))
}

func TestDigestSubject(t *testing.T) {
	t.Parallel()

	loc := NewLocalizer("en")
	assert.Equal(t, "You have 2 unread messages", DigestSubject(loc, 2, 0))
	assert.Equal(t, "You have 1 new conversation requests", DigestSubject(loc, 0, 1))
	assert.Equal(t, "You have 2 unread messages and 1 conversation requests", DigestSubject(loc, 2, 1))
}

type fakeLocalizer struct {
	values map[string]string
}

func (f fakeLocalizer) Sprintf(key message.Reference, args ...any) string {
	asString, ok := key.(string)
	if !ok {
		return ""
	}
	format, ok := f.values[asString]
	if !ok {
		return asString
	}
	return fmt.Sprintf(format, args...)
}

func TestCatalogKeysMatchSharedTranslations(t *testing.T) {
	assert.Equal(t, Key("messaging.system.listing_reserved_for_this_puzzler"), KeyListingReservedForThisPuzzler)
	assert.Equal(t, Key("messaging.system.listing_sold_to_this_puzzler"), KeyListingSoldToThisPuzzler)
	assert.Equal(t, "This listing has been sold to this puzzler.", Text(NewLocalizer("en"), KeyListingSoldToThisPuzzler))
}
