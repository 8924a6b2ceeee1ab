package agent

import (
	"encoding/json"
	"fmt"

	"github.com/relocato/assistant/internal/crm"
	"github.com/relocato/assistant/internal/planner"
)

// Registry is the closed set of tools offered to the planner. Its
// Definitions feed the planner's tool-use request; Parse is the only
// way to construct an Action from planner output.
type Registry struct {
	defs []planner.ToolSchema
}

// NewRegistry builds the registry with every tool's argument schema.
func NewRegistry() *Registry {
	phases := make([]interface{}, len(crm.Phases))
	for i, p := range crm.Phases {
		phases[i] = string(p)
	}

	str := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	num := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "number", "description": desc}
	}
	phaseProp := map[string]interface{}{
		"type":        "string",
		"description": "Pipeline-Phase des Kunden",
		"enum":        phases,
	}
	finished := map[string]interface{}{
		"type":        "boolean",
		"description": "Setze true, wenn die Aufgabe nach dieser Aktion vollstaendig erledigt ist",
	}

	defs := []planner.ToolSchema{
		{
			Name:        string(KindCreateCustomer),
			Description: "Legt einen neuen Kunden im CRM an",
			Properties: map[string]interface{}{
				"name":          str("Name des Kunden oder der Firma"),
				"email":         str("E-Mail-Adresse"),
				"phone":         str("Telefonnummer"),
				"fromAddress":   str("Auszugsadresse"),
				"toAddress":     str("Einzugsadresse"),
				"movingDate":    str("Umzugstermin (ISO-Datum)"),
				"phase":         phaseProp,
				"notes":         str("Freitext-Notizen"),
				"task_complete": finished,
			},
			Required: []string{"name"},
		},
		{
			Name:        string(KindUpdateCustomer),
			Description: "Aktualisiert Felder eines bestehenden Kunden",
			Properties: map[string]interface{}{
				"customerId":    str("ID des Kunden"),
				"name":          str("Neuer Name"),
				"email":         str("Neue E-Mail-Adresse"),
				"phone":         str("Neue Telefonnummer"),
				"fromAddress":   str("Neue Auszugsadresse"),
				"toAddress":     str("Neue Einzugsadresse"),
				"movingDate":    str("Neuer Umzugstermin"),
				"phase":         phaseProp,
				"notes":         str("Neue Notizen"),
				"task_complete": finished,
			},
			Required: []string{"customerId"},
		},
		{
			Name:        string(KindSearchCustomers),
			Description: "Sucht Kunden nach Name, E-Mail oder Telefonnummer",
			Properties: map[string]interface{}{
				"query":         str("Suchbegriff"),
				"task_complete": finished,
			},
			Required: []string{"query"},
		},
		{
			Name:        string(KindCreateQuote),
			Description: "Erstellt ein Umzugsangebot fuer einen Kunden",
			Properties: map[string]interface{}{
				"customerId":    str("ID des Kunden"),
				"price":         num("Angebotspreis in Euro"),
				"volume":        num("Umzugsvolumen in Kubikmetern"),
				"distance":      num("Entfernung in Kilometern"),
				"comment":       str("Kommentar zum Angebot"),
				"task_complete": finished,
			},
			Required: []string{"customerId", "price"},
		},
		{
			Name:        string(KindCreateInvoice),
			Description: "Erstellt eine Rechnung fuer einen Kunden",
			Properties: map[string]interface{}{
				"customerId":    str("ID des Kunden"),
				"quoteId":       str("ID des zugrundeliegenden Angebots"),
				"totalPrice":    num("Rechnungsbetrag in Euro"),
				"task_complete": finished,
			},
			Required: []string{"customerId", "totalPrice"},
		},
		{
			Name:        string(KindReadFile),
			Description: "Liest eine Datei aus dem Projekt-Sandbox",
			Properties: map[string]interface{}{
				"path":          str("Relativer Dateipfad"),
				"task_complete": finished,
			},
			Required: []string{"path"},
		},
		{
			Name:        string(KindWriteFile),
			Description: "Schreibt eine Datei in die Projekt-Sandbox",
			Properties: map[string]interface{}{
				"path":          str("Relativer Dateipfad"),
				"content":       str("Vollstaendiger Dateiinhalt"),
				"task_complete": finished,
			},
			Required: []string{"path", "content"},
		},
		{
			Name:        string(KindEditFile),
			Description: "Ersetzt Text in einer bestehenden Datei",
			Properties: map[string]interface{}{
				"path":          str("Relativer Dateipfad"),
				"oldString":     str("Zu ersetzender Text"),
				"newString":     str("Neuer Text"),
				"task_complete": finished,
			},
			Required: []string{"path", "oldString", "newString"},
		},
		{
			Name:        string(KindListFiles),
			Description: "Listet ein Verzeichnis der Projekt-Sandbox auf",
			Properties: map[string]interface{}{
				"path":          str("Relativer Verzeichnispfad"),
				"task_complete": finished,
			},
		},
		{
			Name:        string(KindSearchCode),
			Description: "Durchsucht den Projektcode nach einem Muster",
			Properties: map[string]interface{}{
				"pattern":       str("Suchmuster"),
				"path":          str("Optionaler Startpfad"),
				"task_complete": finished,
			},
			Required: []string{"pattern"},
		},
		{
			Name:        string(KindExecuteCommand),
			Description: "Fuehrt einen Shell-Befehl in der Sandbox aus",
			Properties: map[string]interface{}{
				"command":       str("Der auszufuehrende Befehl"),
				"task_complete": finished,
			},
			Required: []string{"command"},
		},
		{
			Name:        string(KindGitOperation),
			Description: "Fuehrt eine Git-Operation aus (status, add, commit, diff, log)",
			Properties: map[string]interface{}{
				"action": str("Git-Aktion"),
				"params": map[string]interface{}{
					"type":        "object",
					"description": "Aktionsparameter, z.B. commit message",
				},
				"task_complete": finished,
			},
			Required: []string{"action"},
		},
		{
			Name:        string(KindCreateComponent),
			Description: "Erstellt eine neue React-Komponente aus der Standardvorlage",
			Properties: map[string]interface{}{
				"name":          str("Komponentenname, GrossschreibungAmAnfang"),
				"directory":     str("Zielverzeichnis, Standard src/components"),
				"task_complete": finished,
			},
			Required: []string{"name"},
		},
	}

	return &Registry{defs: defs}
}

// Definitions returns the tool schemas for the planner request.
func (r *Registry) Definitions() []planner.ToolSchema {
	return r.defs
}

// Parse decodes raw planner arguments into a typed Action. Unknown tool
// names and missing required fields are rejected here, before any
// validation or execution.
func (r *Registry) Parse(name string, raw json.RawMessage) (*Action, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var flag struct {
		TaskComplete *bool `json:"task_complete"`
	}
	if err := json.Unmarshal(raw, &flag); err != nil {
		return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
	}

	kind := Kind(name)
	var payload Payload
	var missing []string

	switch kind {
	case KindCreateCustomer:
		var p CreateCustomerPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.Name == "" {
			missing = append(missing, "name")
		}
		payload = p
	case KindUpdateCustomer:
		var p UpdateCustomerPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.CustomerID == "" {
			missing = append(missing, "customerId")
		}
		payload = p
	case KindSearchCustomers:
		var p SearchCustomersPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.Query == "" {
			missing = append(missing, "query")
		}
		payload = p
	case KindCreateQuote:
		var p CreateQuotePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.CustomerID == "" {
			missing = append(missing, "customerId")
		}
		if p.Price <= 0 {
			missing = append(missing, "price")
		}
		payload = p
	case KindCreateInvoice:
		var p CreateInvoicePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.CustomerID == "" {
			missing = append(missing, "customerId")
		}
		if p.TotalPrice <= 0 {
			missing = append(missing, "totalPrice")
		}
		payload = p
	case KindReadFile:
		var p ReadFilePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.Path == "" {
			missing = append(missing, "path")
		}
		payload = p
	case KindWriteFile:
		var p WriteFilePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.Path == "" {
			missing = append(missing, "path")
		}
		if p.Content == "" {
			missing = append(missing, "content")
		}
		payload = p
	case KindEditFile:
		var p EditFilePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.Path == "" {
			missing = append(missing, "path")
		}
		if p.OldString == "" {
			missing = append(missing, "oldString")
		}
		payload = p
	case KindListFiles:
		var p ListFilesPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		payload = p
	case KindSearchCode:
		var p SearchCodePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.Pattern == "" {
			missing = append(missing, "pattern")
		}
		payload = p
	case KindExecuteCommand:
		var p ExecuteCommandPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.Command == "" {
			missing = append(missing, "command")
		}
		payload = p
	case KindGitOperation:
		var p GitOperationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.Action == "" {
			missing = append(missing, "action")
		}
		payload = p
	case KindCreateComponent:
		var p CreateComponentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("malformed tool arguments for %s: %w", name, err)
		}
		if p.Name == "" {
			missing = append(missing, "name")
		}
		payload = p
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing required arguments %v", name, missing)
	}

	return &Action{Kind: kind, Payload: payload, TaskComplete: flag.TaskComplete}, nil
}
