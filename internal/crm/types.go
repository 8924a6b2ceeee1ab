// Package crm holds the moving-company domain model and the SQLite
// backed business data store the assistant executes actions against.
package crm

import (
	"context"
	"time"
)

// Phase is a customer's position in the sales pipeline.
type Phase string

const (
	PhaseAngerufen          Phase = "angerufen"
	PhaseNachfassen         Phase = "nachfassen"
	PhaseAngebotErstellt    Phase = "angebot_erstellt"
	PhaseBesichtigungGeplant Phase = "besichtigung_geplant"
	PhaseDurchfuehrung      Phase = "durchfuehrung"
	PhaseRechnung           Phase = "rechnung"
	PhaseBewertung          Phase = "bewertung"
	PhaseArchiviert         Phase = "archiviert"
)

// Phases lists every pipeline phase in order.
var Phases = []Phase{
	PhaseAngerufen,
	PhaseNachfassen,
	PhaseAngebotErstellt,
	PhaseBesichtigungGeplant,
	PhaseDurchfuehrung,
	PhaseRechnung,
	PhaseBewertung,
	PhaseArchiviert,
}

// IsValid reports whether p is a known pipeline phase.
func (p Phase) IsValid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Apartment describes the dwelling being moved.
type Apartment struct {
	Rooms       int  `json:"rooms"`
	Area        int  `json:"area"`
	Floor       int  `json:"floor"`
	HasElevator bool `json:"hasElevator"`
}

// Customer is a moving-company customer record.
type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	FromAddress  string    `json:"fromAddress"`
	ToAddress    string    `json:"toAddress"`
	MovingDate   string    `json:"movingDate"`
	Apartment    Apartment `json:"apartment"`
	Services     []string  `json:"services"`
	CurrentPhase Phase     `json:"currentPhase"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CustomerUpdate is a partial customer update; nil fields are left
// untouched.
type CustomerUpdate struct {
	Name         *string
	Email        *string
	Phone        *string
	FromAddress  *string
	ToAddress    *string
	MovingDate   *string
	CurrentPhase *Phase
	Notes        *string
}

// Quote is a price offer for a move.
type Quote struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customerId"`
	CustomerName string    `json:"customerName"`
	Price        float64   `json:"price"`
	Volume       float64   `json:"volume"`
	Distance     float64   `json:"distance"`
	Comment      string    `json:"comment,omitempty"`
	Status       string    `json:"status"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Invoice bills a customer, usually from an accepted quote.
type Invoice struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customerId"`
	CustomerName string    `json:"customerName"`
	QuoteID      string    `json:"quoteId,omitempty"`
	TotalPrice   float64   `json:"totalPrice"`
	Status       string    `json:"status"` // draft, sent, paid, cancelled
	CreatedAt    time.Time `json:"createdAt"`
}

// Service is the business collaborator the action executor and the
// context cache talk to.
type Service interface {
	Customers(ctx context.Context) ([]Customer, error)
	Quotes(ctx context.Context) ([]Quote, error)
	Invoices(ctx context.Context) ([]Invoice, error)

	CreateCustomer(ctx context.Context, c Customer) (*Customer, error)
	UpdateCustomer(ctx context.Context, id string, u CustomerUpdate) (*Customer, error)
	CreateQuote(ctx context.Context, q Quote) (*Quote, error)
	CreateInvoice(ctx context.Context, inv Invoice) (*Invoice, error)
}
