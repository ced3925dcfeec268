package notify

import (
	"fmt"
	"log"
)

// Notifier reports user-facing events. When disabled it only logs.
type Notifier struct {
	enabled bool
	sink    func(message string)
}

// NewNotifier creates a notifier. A nil sink prints to stdout.
func NewNotifier(enabled bool, sink func(message string)) *Notifier {
	if sink == nil {
		sink = func(message string) { fmt.Println(message) }
	}
	return &Notifier{enabled: enabled, sink: sink}
}

// NewArticles reports the outcome of an ingestion run. A zero count is
// reported distinctly so the user knows the refresh did run.
func (n *Notifier) NewArticles(count int) {
	if count > 0 {
		n.send(fmt.Sprintf("%d neue Artikel gefunden", count))
	} else {
		n.send("Keine neuen Artikel in abonnierten Feeds")
	}
}

// EngineError reports a failed model initialization.
func (n *Notifier) EngineError(reason string) {
	n.send("Initialisierung fehlgeschlagen. Tipp: App neustarten oder Modell erneut wählen. Details: " + reason)
}

func (n *Notifier) send(message string) {
	log.Printf("notify: %s", message)
	if n.enabled {
		n.sink(message)
	}
}
