// Package render turns stored system messages into per-viewer text. Nothing
// here touches storage: the same stored row renders for every participant.
package render

import (
	"github.com/capitalize-ai/player-messaging/internal/model"
)

// Key is a catalog key for one system message phrasing.
type Key string

const (
	KeyListingReserved               Key = "messaging.system.listing_reserved"
	KeyListingReservedForYou         Key = "messaging.system.listing_reserved_for_you"
	KeyListingReservedForThisPuzzler Key = "messaging.system.listing_reserved_for_this_puzzler"
	KeyListingReservedForSomeoneElse Key = "messaging.system.listing_reserved_for_someone_else"
	KeyListingReservationRemoved     Key = "messaging.system.listing_reservation_removed"
	KeyListingSold                   Key = "messaging.system.listing_sold"
	KeyListingSoldToYou              Key = "messaging.system.listing_sold_to_you"
	KeyListingSoldToThisPuzzler      Key = "messaging.system.listing_sold_to_this_puzzler"
	KeyListingSoldToSomeoneElse      Key = "messaging.system.listing_sold_to_someone_else"
	KeyUnknown                       Key = "messaging.system.unknown"
)

type variants struct {
	canonical   Key
	forYou      Key
	thisPuzzler Key
	someoneElse Key
}

var keysByType = map[model.SystemMessageType]variants{
	model.SystemListingReserved: {
		canonical:   KeyListingReserved,
		forYou:      KeyListingReservedForYou,
		thisPuzzler: KeyListingReservedForThisPuzzler,
		someoneElse: KeyListingReservedForSomeoneElse,
	},
	model.SystemListingSold: {
		canonical:   KeyListingSold,
		forYou:      KeyListingSoldToYou,
		thisPuzzler: KeyListingSoldToThisPuzzler,
		someoneElse: KeyListingSoldToSomeoneElse,
	},
	model.SystemListingReservationRemoved: {
		canonical: KeyListingReservationRemoved,
	},
}

// Resolve picks the phrasing of a system message for one viewer.
//
// Without a target every viewer gets the canonical phrasing. The target
// gets the "for you" phrasing. When counterpartID is the target, the viewer
// is the other side of that very deal and gets the "this player" phrasing.
// Everyone else gets "someone else". Pass an empty counterpartID when the
// conversation is unknown.
func Resolve(typ model.SystemMessageType, targetID, viewerID, counterpartID string) Key {
	keys, ok := keysByType[typ]
	if !ok {
		return KeyUnknown
	}
	if targetID == "" || keys.forYou == "" {
		return keys.canonical
	}
	switch {
	case targetID == viewerID:
		return keys.forYou
	case counterpartID != "" && targetID == counterpartID:
		return keys.thisPuzzler
	default:
		return keys.someoneElse
	}
}

// ResolveMessage resolves msg for viewerID inside conv.
func ResolveMessage(msg model.Message, conv model.Conversation, viewerID string) Key {
	return Resolve(msg.SystemType, msg.SystemTargetID, viewerID, conv.Counterpart(viewerID))
}
