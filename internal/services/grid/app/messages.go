package app

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Printer keys. The English text doubles as the key.
const (
	msgWindow        = "Page %d of %d: rows %d to %d of %d"
	msgWindowUnknown = "Page %d: %d rows, total unknown"
	msgWindowEmpty   = "Page %d: no rows"
	msgWindowFailed  = "Page %d failed: %s"
	msgColumns       = "Visible columns: %s"
	msgStats         = "Requests: %d (cache hits %d, misses %d, stale %d, failures %d)"
	msgLatency       = "Last latency: %v, average %v (%s)"
	msgSettings      = "Strategy: %s, page sizes %s"
)

var supportedLocales = []language.Tag{language.English, language.French}

var localeMatcher = language.NewMatcher(supportedLocales)

func init() {
	fr := language.French
	message.SetString(fr, msgWindow, "Page %d sur %d : lignes %d à %d sur %d")
	message.SetString(fr, msgWindowUnknown, "Page %d : %d lignes, total inconnu")
	message.SetString(fr, msgWindowEmpty, "Page %d : aucune ligne")
	message.SetString(fr, msgWindowFailed, "Échec de la page %d : %s")
	message.SetString(fr, msgColumns, "Colonnes visibles : %s")
	message.SetString(fr, msgStats, "Requêtes : %d (cache %d, absences %d, obsolètes %d, échecs %d)")
	message.SetString(fr, msgLatency, "Dernière latence : %v, moyenne %v (%s)")
	message.SetString(fr, msgSettings, "Stratégie : %s, tailles de page %s")
}

// newPrinter returns a printer for the closest supported locale.
func newPrinter(locale string) *message.Printer {
	tag := language.English
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			_, idx, _ := localeMatcher.Match(parsed)
			tag = supportedLocales[idx]
		}
	}
	return message.NewPrinter(tag)
}
