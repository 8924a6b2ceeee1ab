package agent

import (
	"context"
	"fmt"

	"github.com/relocato/assistant/internal/codeops"
	"github.com/relocato/assistant/internal/crm"
	"github.com/relocato/assistant/internal/logging"
	"github.com/relocato/assistant/internal/snapshot"
	"github.com/relocato/assistant/internal/validate"
)

// CodeBackend is the file/shell collaborator surface the executor
// needs. *codeops.Client satisfies it.
type CodeBackend interface {
	ReadFile(ctx context.Context, path string) (*codeops.FileContent, error)
	WriteFile(ctx context.Context, path, content string) error
	EditFile(ctx context.Context, path, oldStr, newStr string) (int, error)
	ListFiles(ctx context.Context, path string) ([]codeops.FileEntry, error)
	SearchCode(ctx context.Context, pattern, path string) ([]codeops.Match, error)
	Execute(ctx context.Context, command string) (*codeops.ExecResult, error)
	Git(ctx context.Context, action string, params map[string]string) (string, error)
	CreateComponent(ctx context.Context, name, directory string) (string, error)
}

// CreatedEntity is the result payload of entity-creating actions.
type CreatedEntity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// EditResult is the result payload of an edit.
type EditResult struct {
	Path             string `json:"path"`
	ReplacementCount int    `json:"replacementCount"`
}

// Executor dispatches validated actions to their collaborators. Each
// handler performs exactly one side effect and is invoked at most once
// per record.
type Executor struct {
	crm   crm.Service
	code  CodeBackend
	cache *snapshot.Cache
}

// NewExecutor wires the executor to its collaborators.
func NewExecutor(service crm.Service, code CodeBackend, cache *snapshot.Cache) *Executor {
	return &Executor{crm: service, code: code, cache: cache}
}

// Execute runs one action and returns its finished record. Validation
// rejections fail the record before any collaborator is contacted;
// collaborator failures are captured on the record. Execute never
// panics and never returns an error past the record.
func (e *Executor) Execute(ctx context.Context, action *Action) *Record {
	record := &Record{Kind: action.Kind, Input: action.Payload, Status: StatusPending}
	log := logging.Get(logging.CategoryExecutor)

	if err := e.preflight(action); err != nil {
		log.Warn("Action %s rejected: %v", action.Kind, err)
		record.fail(err)
		return record
	}

	timer := logging.StartTimer(logging.CategoryExecutor, string(action.Kind))
	result, detail, err := e.dispatch(ctx, action)
	timer.Stop()

	if err != nil {
		log.Warn("Action %s failed: %v", action.Kind, err)
		record.fail(&CollaboratorError{Kind: action.Kind, Err: err})
		return record
	}

	record.complete(result, detail)
	log.Info("Action %s completed: %s", action.Kind, detail)
	return record
}

// preflight runs the pure validation layer. Warnings are logged but do
// not block execution.
func (e *Executor) preflight(action *Action) error {
	var result *validate.Result

	switch p := action.Payload.(type) {
	case ReadFilePayload:
		result = validate.Path(p.Path)
	case WriteFilePayload:
		result = validate.Path(p.Path)
		if result.Valid {
			code := validate.Code(p.Content)
			result.Errors = append(result.Errors, code.Errors...)
			result.Warnings = append(result.Warnings, code.Warnings...)
			result.Valid = len(result.Errors) == 0
		}
	case EditFilePayload:
		result = validate.Path(p.Path)
	case ExecuteCommandPayload:
		result = validate.Command(p.Command)
	case CreateComponentPayload:
		result = validate.ComponentName(p.Name)
	default:
		return nil
	}

	for _, warning := range result.Warnings {
		logging.Get(logging.CategoryValidate).Warn("%s: %s", action.Kind, warning)
	}
	if !result.Valid {
		return &ValidationError{Kind: action.Kind, Issues: result.Errors}
	}
	return nil
}

// dispatch is the exhaustive match over the payload union.
func (e *Executor) dispatch(ctx context.Context, action *Action) (interface{}, string, error) {
	switch p := action.Payload.(type) {
	case CreateCustomerPayload:
		return e.createCustomer(ctx, p)
	case UpdateCustomerPayload:
		return e.updateCustomer(ctx, p)
	case SearchCustomersPayload:
		return e.searchCustomers(ctx, p)
	case CreateQuotePayload:
		return e.createQuote(ctx, p)
	case CreateInvoicePayload:
		return e.createInvoice(ctx, p)
	case ReadFilePayload:
		content, err := e.code.ReadFile(ctx, p.Path)
		if err != nil {
			return nil, "", err
		}
		return content, fmt.Sprintf("%s (%d Bytes)", p.Path, content.Size), nil
	case WriteFilePayload:
		if err := e.code.WriteFile(ctx, p.Path, p.Content); err != nil {
			return nil, "", err
		}
		return map[string]string{"path": p.Path}, p.Path, nil
	case EditFilePayload:
		count, err := e.code.EditFile(ctx, p.Path, p.OldString, p.NewString)
		if err != nil {
			return nil, "", err
		}
		return EditResult{Path: p.Path, ReplacementCount: count},
			fmt.Sprintf("%s (%d Ersetzungen)", p.Path, count), nil
	case ListFilesPayload:
		entries, err := e.code.ListFiles(ctx, p.Path)
		if err != nil {
			return nil, "", err
		}
		return entries, fmt.Sprintf("%d Eintraege", len(entries)), nil
	case SearchCodePayload:
		matches, err := e.code.SearchCode(ctx, p.Pattern, p.Path)
		if err != nil {
			return nil, "", err
		}
		return matches, fmt.Sprintf("%d Treffer fuer %q", len(matches), p.Pattern), nil
	case ExecuteCommandPayload:
		result, err := e.code.Execute(ctx, p.Command)
		if err != nil {
			return nil, "", err
		}
		return result, fmt.Sprintf("%q (exit %d)", p.Command, result.ExitCode), nil
	case GitOperationPayload:
		output, err := e.code.Git(ctx, p.Action, p.Params)
		if err != nil {
			return nil, "", err
		}
		return map[string]string{"output": output}, "git " + p.Action, nil
	case CreateComponentPayload:
		path, err := e.code.CreateComponent(ctx, p.Name, p.Directory)
		if err != nil {
			return nil, "", err
		}
		return map[string]string{"path": path}, path, nil
	default:
		// Unreachable: Parse is the only payload constructor.
		return nil, "", fmt.Errorf("unhandled action kind %s", action.Kind)
	}
}

func (e *Executor) createCustomer(ctx context.Context, p CreateCustomerPayload) (interface{}, string, error) {
	customer := crm.Customer{
		Name:         p.Name,
		Email:        p.Email,
		Phone:        p.Phone,
		FromAddress:  p.FromAddress,
		ToAddress:    p.ToAddress,
		MovingDate:   p.MovingDate,
		CurrentPhase: crm.Phase(p.Phase),
		Notes:        p.Notes,
	}
	created, err := e.crm.CreateCustomer(ctx, customer)
	if err != nil {
		return nil, "", err
	}
	e.cache.Invalidate()
	return CreatedEntity{ID: created.ID, Name: created.Name}, created.Name, nil
}

func (e *Executor) updateCustomer(ctx context.Context, p UpdateCustomerPayload) (interface{}, string, error) {
	update := crm.CustomerUpdate{
		Name:        p.Name,
		Email:       p.Email,
		Phone:       p.Phone,
		FromAddress: p.FromAddress,
		ToAddress:   p.ToAddress,
		MovingDate:  p.MovingDate,
		Notes:       p.Notes,
	}
	if p.Phase != nil {
		phase := crm.Phase(*p.Phase)
		update.CurrentPhase = &phase
	}
	updated, err := e.crm.UpdateCustomer(ctx, p.CustomerID, update)
	if err != nil {
		return nil, "", err
	}
	e.cache.Invalidate()
	return CreatedEntity{ID: updated.ID, Name: updated.Name}, updated.Name, nil
}

// searchCustomers reads from the cached snapshot, not the store; the
// planner only needs the view it was prompted with.
func (e *Executor) searchCustomers(ctx context.Context, p SearchCustomersPayload) (interface{}, string, error) {
	snap, err := e.cache.Get(ctx, false)
	if err != nil {
		return nil, "", err
	}
	matches := snap.SearchCustomers(p.Query)
	return matches, fmt.Sprintf("%d Treffer fuer %q", len(matches), p.Query), nil
}

func (e *Executor) createQuote(ctx context.Context, p CreateQuotePayload) (interface{}, string, error) {
	quote := crm.Quote{
		CustomerID: p.CustomerID,
		Price:      p.Price,
		Volume:     p.Volume,
		Distance:   p.Distance,
		Comment:    p.Comment,
		CreatedBy:  "ai-assistant",
	}
	created, err := e.crm.CreateQuote(ctx, quote)
	if err != nil {
		return nil, "", err
	}
	e.cache.Invalidate()
	return CreatedEntity{ID: created.ID, Name: created.CustomerName},
		fmt.Sprintf("%.2f EUR fuer %s", created.Price, created.CustomerName), nil
}

func (e *Executor) createInvoice(ctx context.Context, p CreateInvoicePayload) (interface{}, string, error) {
	invoice := crm.Invoice{
		CustomerID: p.CustomerID,
		QuoteID:    p.QuoteID,
		TotalPrice: p.TotalPrice,
	}
	created, err := e.crm.CreateInvoice(ctx, invoice)
	if err != nil {
		return nil, "", err
	}
	e.cache.Invalidate()
	return CreatedEntity{ID: created.ID, Name: created.CustomerName},
		fmt.Sprintf("%.2f EUR fuer %s", created.TotalPrice, created.CustomerName), nil
}
