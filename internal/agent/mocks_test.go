package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/relocato/assistant/internal/codeops"
	"github.com/relocato/assistant/internal/crm"
	"github.com/relocato/assistant/internal/planner"
	"github.com/relocato/assistant/internal/rag"
)

// scriptedPlanner replays a fixed sequence of tool-use responses.
type scriptedPlanner struct {
	mu        sync.Mutex
	responses []*planner.Response
	errs      []error
	calls     int
	vision    int
}

func (p *scriptedPlanner) GenerateText(context.Context, string, string) (string, error) {
	return "Zusammenfassung", nil
}

func (p *scriptedPlanner) GenerateVision(context.Context, string, string, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vision++
	return "Bildbeschreibung", nil
}

func (p *scriptedPlanner) GenerateWithTools(_ context.Context, _, _ string, _ []planner.ToolSchema) (*planner.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	if idx >= len(p.responses) {
		return &planner.Response{Text: "Alles klar."}, nil
	}
	return p.responses[idx], nil
}

func toolResponse(text, name string, args map[string]interface{}) *planner.Response {
	raw, _ := json.Marshal(args)
	return &planner.Response{
		Text:     text,
		ToolCall: &planner.ToolCall{Name: name, Args: raw},
	}
}

// memoryCRM is an in-memory business collaborator.
type memoryCRM struct {
	mu        sync.Mutex
	customers []crm.Customer
	quotes    []crm.Quote
	invoices  []crm.Invoice
	failNext  error
}

func (m *memoryCRM) Customers(context.Context) ([]crm.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]crm.Customer(nil), m.customers...), nil
}

func (m *memoryCRM) Quotes(context.Context) ([]crm.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]crm.Quote(nil), m.quotes...), nil
}

func (m *memoryCRM) Invoices(context.Context) ([]crm.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]crm.Invoice(nil), m.invoices...), nil
}

func (m *memoryCRM) CreateCustomer(_ context.Context, c crm.Customer) (*crm.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}
	c.ID = fmt.Sprintf("c%d", len(m.customers)+1)
	if c.CurrentPhase == "" {
		c.CurrentPhase = crm.PhaseAngerufen
	}
	m.customers = append(m.customers, c)
	return &c, nil
}

func (m *memoryCRM) UpdateCustomer(_ context.Context, id string, u crm.CustomerUpdate) (*crm.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.customers {
		if m.customers[i].ID == id {
			if u.Name != nil {
				m.customers[i].Name = *u.Name
			}
			if u.CurrentPhase != nil {
				m.customers[i].CurrentPhase = *u.CurrentPhase
			}
			c := m.customers[i]
			return &c, nil
		}
	}
	return nil, fmt.Errorf("customer %s not found", id)
}

func (m *memoryCRM) CreateQuote(_ context.Context, q crm.Quote) (*crm.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.ID = fmt.Sprintf("q%d", len(m.quotes)+1)
	m.quotes = append(m.quotes, q)
	return &q, nil
}

func (m *memoryCRM) CreateInvoice(_ context.Context, inv crm.Invoice) (*crm.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.ID = fmt.Sprintf("i%d", len(m.invoices)+1)
	m.invoices = append(m.invoices, inv)
	return &inv, nil
}

func crmCustomer(id, name string) crm.Customer {
	return crm.Customer{ID: id, Name: name, CurrentPhase: crm.PhaseAngerufen}
}

// recordingBackend counts collaborator calls.
type recordingBackend struct {
	mu       sync.Mutex
	reads    int
	writes   int
	executes int
}

func (b *recordingBackend) ReadFile(context.Context, string) (*codeops.FileContent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	return &codeops.FileContent{Content: "content", Size: 7}, nil
}

func (b *recordingBackend) WriteFile(context.Context, string, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	return nil
}

func (b *recordingBackend) EditFile(context.Context, string, string, string) (int, error) {
	return 2, nil
}

func (b *recordingBackend) ListFiles(context.Context, string) ([]codeops.FileEntry, error) {
	return []codeops.FileEntry{{Name: "App.tsx"}}, nil
}

func (b *recordingBackend) SearchCode(context.Context, string, string) ([]codeops.Match, error) {
	return []codeops.Match{{Path: "src/App.tsx", Line: 3}}, nil
}

func (b *recordingBackend) Execute(context.Context, string) (*codeops.ExecResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executes++
	return &codeops.ExecResult{Stdout: "ok"}, nil
}

func (b *recordingBackend) Git(context.Context, string, map[string]string) (string, error) {
	return "clean", nil
}

func (b *recordingBackend) CreateComponent(_ context.Context, name, directory string) (string, error) {
	if directory == "" {
		directory = "src/components"
	}
	return directory + "/" + name + ".tsx", nil
}

// recordingMemory captures persistence without a database.
type recordingMemory struct {
	mu       sync.Mutex
	turns    []string
	learned  int
	failFind error
}

func (m *recordingMemory) StoreTurn(_ context.Context, _, role, content string, _ rag.TurnMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, role+": "+content)
	return nil
}

func (m *recordingMemory) FindRelevantHistory(context.Context, string, string) ([]rag.RetrievedItem, error) {
	if m.failFind != nil {
		return nil, m.failFind
	}
	return nil, nil
}

func (m *recordingMemory) SearchKnowledge(context.Context, string, string) ([]rag.RetrievedItem, error) {
	return nil, nil
}

func (m *recordingMemory) FindLearnedPatterns(context.Context, string) ([]rag.RetrievedItem, error) {
	return nil, nil
}

func (m *recordingMemory) LearnFromInteraction(context.Context, string, string, []string, float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learned++
	return nil
}

func (m *recordingMemory) learnedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.learned
}
