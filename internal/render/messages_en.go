package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var englishText = map[Key]string{
	KeyListingReserved:               "This listing has been reserved.",
	KeyListingReservedForYou:         "This listing has been reserved for you.",
	KeyListingReservedForThisPuzzler: "This listing has been reserved for this puzzler.",
	KeyListingReservedForSomeoneElse: "This listing has been reserved for someone else.",
	KeyListingReservationRemoved:     "The reservation of this listing has been removed.",
	KeyListingSold:                   "This listing has been sold.",
	KeyListingSoldToYou:              "This listing has been sold to you.",
	KeyListingSoldToThisPuzzler:      "This listing has been sold to this puzzler.",
	KeyListingSoldToSomeoneElse:      "This listing has been sold to someone else.",
	KeyUnknown:                       "Conversation update.",
}

var englishPrinter = message.NewPrinter(language.English)

func init() {
	lang := language.English

	for key, text := range englishText {
		message.SetString(lang, string(key), text)
	}
	message.SetString(lang, "messaging.digest.subject_messages", "You have %d unread messages")
	message.SetString(lang, "messaging.digest.subject_requests", "You have %d new conversation requests")
	message.SetString(lang, "messaging.digest.subject_messages_and_requests", "You have %d unread messages and %d conversation requests")
}
