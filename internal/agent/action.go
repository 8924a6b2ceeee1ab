// Package agent composes the tool registry, the action executor and the
// bounded orchestrator loop. The planner proposes actions; the agent
// validates, executes and records them.
package agent

import "fmt"

// Kind identifies one tool in the closed registry set.
type Kind string

const (
	KindCreateCustomer  Kind = "create_customer"
	KindUpdateCustomer  Kind = "update_customer"
	KindSearchCustomers Kind = "search_customers"
	KindCreateQuote     Kind = "create_quote"
	KindCreateInvoice   Kind = "create_invoice"
	KindReadFile        Kind = "read_file"
	KindWriteFile       Kind = "write_file"
	KindEditFile        Kind = "edit_file"
	KindListFiles       Kind = "list_files"
	KindSearchCode      Kind = "search_code"
	KindExecuteCommand  Kind = "execute_command"
	KindGitOperation    Kind = "git_operation"
	KindCreateComponent Kind = "create_component"
)

// Kinds lists every registered tool.
var Kinds = []Kind{
	KindCreateCustomer,
	KindUpdateCustomer,
	KindSearchCustomers,
	KindCreateQuote,
	KindCreateInvoice,
	KindReadFile,
	KindWriteFile,
	KindEditFile,
	KindListFiles,
	KindSearchCode,
	KindExecuteCommand,
	KindGitOperation,
	KindCreateComponent,
}

// Payload is the closed set of typed tool arguments. Only registry
// parsing constructs payloads, so an unknown action kind cannot reach
// the executor.
type Payload interface{ isPayload() }

type CreateCustomerPayload struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	FromAddress string `json:"fromAddress,omitempty"`
	ToAddress   string `json:"toAddress,omitempty"`
	MovingDate  string `json:"movingDate,omitempty"`
	Phase       string `json:"phase,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type UpdateCustomerPayload struct {
	CustomerID  string  `json:"customerId"`
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	FromAddress *string `json:"fromAddress,omitempty"`
	ToAddress   *string `json:"toAddress,omitempty"`
	MovingDate  *string `json:"movingDate,omitempty"`
	Phase       *string `json:"phase,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

type SearchCustomersPayload struct {
	Query string `json:"query"`
}

type CreateQuotePayload struct {
	CustomerID string  `json:"customerId"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume,omitempty"`
	Distance   float64 `json:"distance,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

type CreateInvoicePayload struct {
	CustomerID string  `json:"customerId"`
	QuoteID    string  `json:"quoteId,omitempty"`
	TotalPrice float64 `json:"totalPrice"`
}

type ReadFilePayload struct {
	Path string `json:"path"`
}

type WriteFilePayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type EditFilePayload struct {
	Path      string `json:"path"`
	OldString string `json:"oldString"`
	NewString string `json:"newString"`
}

type ListFilesPayload struct {
	Path string `json:"path,omitempty"`
}

type SearchCodePayload struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

type ExecuteCommandPayload struct {
	Command string `json:"command"`
}

type GitOperationPayload struct {
	Action string            `json:"action"`
	Params map[string]string `json:"params,omitempty"`
}

type CreateComponentPayload struct {
	Name      string `json:"name"`
	Directory string `json:"directory,omitempty"`
}

func (CreateCustomerPayload) isPayload()  {}
func (UpdateCustomerPayload) isPayload()  {}
func (SearchCustomersPayload) isPayload() {}
func (CreateQuotePayload) isPayload()     {}
func (CreateInvoicePayload) isPayload()   {}
func (ReadFilePayload) isPayload()        {}
func (WriteFilePayload) isPayload()       {}
func (EditFilePayload) isPayload()        {}
func (ListFilesPayload) isPayload()       {}
func (SearchCodePayload) isPayload()      {}
func (ExecuteCommandPayload) isPayload()  {}
func (GitOperationPayload) isPayload()    {}
func (CreateComponentPayload) isPayload() {}

// Action is one validated, typed tool invocation.
type Action struct {
	Kind    Kind
	Payload Payload

	// TaskComplete carries the planner's structured finish flag when it
	// set one in the tool arguments. Nil means the flag was absent.
	TaskComplete *bool
}

// Status tracks an action record through its one-way lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is the durable trace of one executed action.
type Record struct {
	Kind   Kind        `json:"type"`
	Input  Payload     `json:"input"`
	Status Status      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`

	// Detail is the per-action line rendered into multi-step summaries.
	Detail string `json:"detail,omitempty"`
}

// complete transitions pending to completed. Records transition exactly
// once.
func (r *Record) complete(result interface{}, detail string) {
	if r.Status != StatusPending {
		return
	}
	r.Status = StatusCompleted
	r.Result = result
	r.Detail = detail
}

// fail transitions pending to failed.
func (r *Record) fail(err error) {
	if r.Status != StatusPending {
		return
	}
	r.Status = StatusFailed
	r.Error = err.Error()
}

// Label returns the human description used in response summaries.
func (k Kind) Label() string {
	switch k {
	case KindCreateCustomer:
		return "Kunde angelegt"
	case KindUpdateCustomer:
		return "Kunde aktualisiert"
	case KindSearchCustomers:
		return "Kunden gesucht"
	case KindCreateQuote:
		return "Angebot erstellt"
	case KindCreateInvoice:
		return "Rechnung erstellt"
	case KindReadFile:
		return "Datei gelesen"
	case KindWriteFile:
		return "Datei geschrieben"
	case KindEditFile:
		return "Datei bearbeitet"
	case KindListFiles:
		return "Verzeichnis aufgelistet"
	case KindSearchCode:
		return "Code durchsucht"
	case KindExecuteCommand:
		return "Befehl ausgefuehrt"
	case KindGitOperation:
		return "Git-Operation ausgefuehrt"
	case KindCreateComponent:
		return "Komponente erstellt"
	default:
		return string(k)
	}
}

// CollaboratorError marks a failure of an external collaborator during
// execution, as opposed to a validation rejection.
type CollaboratorError struct {
	Kind Kind
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: collaborator failed: %v", e.Kind, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// ValidationError marks a pre-flight rejection; no side effect was
// attempted.
type ValidationError struct {
	Kind   Kind
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed: %v", e.Kind, e.Issues)
}
