package agent

import (
	"fmt"
	"strings"

	"github.com/relocato/assistant/internal/crm"
	"github.com/relocato/assistant/internal/rag"
	"github.com/relocato/assistant/internal/snapshot"
)

// systemPrompt assembles the planner's system prompt: role, current
// business statistics and the bounded retrieval blocks.
func systemPrompt(snap *snapshot.Context, history, knowledge, patterns []rag.RetrievedItem) string {
	var sb strings.Builder

	sb.WriteString(`Du bist der KI-Assistent der Umzugsfirma RELOCATO. Du hilfst dem Team bei Kundenverwaltung, Angeboten, Rechnungen und bei Arbeiten am Projektcode.

Regeln:
- Nutze pro Antwort hoechstens ein Werkzeug.
- Setze task_complete auf true, sobald die Aufgabe mit dieser Aktion vollstaendig erledigt ist.
- Antworte auf Deutsch, kurz und konkret.
- Erfinde keine Kundendaten; nutze search_customers, wenn dir eine ID fehlt.
`)

	if snap != nil {
		sb.WriteString("\nAktuelle Geschaeftslage:\n")
		fmt.Fprintf(&sb, "- Kunden: %d\n", snap.Stats.TotalCustomers)
		fmt.Fprintf(&sb, "- Angebote: %d\n", snap.Stats.TotalQuotes)
		fmt.Fprintf(&sb, "- Rechnungen: %d\n", snap.Stats.TotalInvoices)
		fmt.Fprintf(&sb, "- Umsatz (bezahlt): %.2f EUR\n", snap.Stats.TotalRevenue)
		for _, phase := range crm.Phases {
			if n := snap.Stats.CustomersByPhase[phase]; n > 0 {
				fmt.Fprintf(&sb, "- Phase %s: %d\n", phase, n)
			}
		}
	}

	if block := rag.FormatContextBlock("\nRelevante fruehere Gespraeche:", history); block != "" {
		sb.WriteString(block)
	}
	if block := rag.FormatContextBlock("\nWissensdatenbank:", knowledge); block != "" {
		sb.WriteString(block)
	}
	if block := rag.FormatContextBlock("\nBewaehrte Vorgehensweisen:", patterns); block != "" {
		sb.WriteString(block)
	}

	return sb.String()
}

// stepPrompt folds prior action results into the next planner turn.
func stepPrompt(message string, records []*Record) string {
	if len(records) == 0 {
		return message
	}
	var sb strings.Builder
	sb.WriteString(message)
	sb.WriteString("\n\nBisher ausgefuehrte Aktionen:\n")
	for i, record := range records {
		fmt.Fprintf(&sb, "%d. %s", i+1, record.Kind.Label())
		if record.Detail != "" {
			fmt.Fprintf(&sb, ": %s", record.Detail)
		}
		if record.Status == StatusFailed {
			fmt.Fprintf(&sb, " (fehlgeschlagen: %s)", record.Error)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nSetze die Aufgabe fort oder antworte abschliessend ohne Werkzeug.")
	return sb.String()
}

// summarizeActions renders the final multi-step summary: one line per
// action with its human label and detail.
func summarizeActions(records []*Record) string {
	var sb strings.Builder
	for _, record := range records {
		sb.WriteString("- ")
		sb.WriteString(record.Kind.Label())
		if record.Detail != "" {
			sb.WriteString(": ")
			sb.WriteString(record.Detail)
		}
		if record.Status == StatusFailed {
			fmt.Fprintf(&sb, " (fehlgeschlagen: %s)", record.Error)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// completionPhrases is the legacy finish heuristic, applied only when
// the planner did not set the structured task_complete flag.
var completionPhrases = []string{"fertig", "abgeschlossen", "erledigt", "done"}

func containsCompletionPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
