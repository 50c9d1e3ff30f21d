package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Czech

	message.SetString(lang, string(KeyListingReserved), "Tato nabídka byla rezervována.")
	message.SetString(lang, string(KeyListingReservedForYou), "Tato nabídka byla rezervována pro vás.")
	message.SetString(lang, string(KeyListingReservedForThisPuzzler), "Tato nabídka byla rezervována pro tohoto puzzlera.")
	message.SetString(lang, string(KeyListingReservedForSomeoneElse), "Tato nabídka byla rezervována pro někoho jiného.")
	message.SetString(lang, string(KeyListingReservationRemoved), "Rezervace této nabídky byla zrušena.")
	message.SetString(lang, string(KeyListingSold), "Tato nabídka byla prodána.")
	message.SetString(lang, string(KeyListingSoldToYou), "Tato nabídka byla prodána vám.")
	message.SetString(lang, string(KeyListingSoldToThisPuzzler), "Tato nabídka byla prodána tomuto puzzlerovi.")
	message.SetString(lang, string(KeyListingSoldToSomeoneElse), "Tato nabídka byla prodána někomu jinému.")
	message.SetString(lang, string(KeyUnknown), "Aktualizace konverzace.")
	message.SetString(lang, "messaging.digest.subject_messages", "Máte %d nepřečtených zpráv")
	message.SetString(lang, "messaging.digest.subject_requests", "Máte %d nových žádostí o konverzaci")
	message.SetString(lang, "messaging.digest.subject_messages_and_requests", "Máte %d nepřečtených zpráv a %d žádostí o konverzaci")
}
