package crm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndListCustomers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateCustomer(ctx, Customer{
		Name:        "Test GmbH",
		Email:       "kontakt@test-gmbh.de",
		Phone:       "+49 30 1234567",
		FromAddress: "Hauptstr. 1, Berlin",
		ToAddress:   "Elbchaussee 99, Hamburg",
		Apartment:   Apartment{Rooms: 4, Area: 110, Floor: 2, HasElevator: true},
		Services:    []string{"Umzug", "Verpackung"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, PhaseAngerufen, created.CurrentPhase)

	customers, err := store.Customers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "Test GmbH", customers[0].Name)
	assert.Equal(t, 4, customers[0].Apartment.Rooms)
	assert.Equal(t, []string{"Umzug", "Verpackung"}, customers[0].Services)
}

func TestCreateCustomerRejectsUnknownPhase(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateCustomer(context.Background(), Customer{
		Name:         "Phantom AG",
		CurrentPhase: Phase("teleportiert"),
	})
	assert.Error(t, err)
}

func TestUpdateCustomer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateCustomer(ctx, Customer{Name: "Meyer KG"})
	require.NoError(t, err)

	phase := PhaseAngebotErstellt
	notes := "Besichtigung am Freitag"
	updated, err := store.UpdateCustomer(ctx, created.ID, CustomerUpdate{
		CurrentPhase: &phase,
		Notes:        &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, PhaseAngebotErstellt, updated.CurrentPhase)
	assert.Equal(t, notes, updated.Notes)
	assert.Equal(t, "Meyer KG", updated.Name)
}

func TestUpdateCustomerNotFound(t *testing.T) {
	store := newTestStore(t)
	name := "Neu"
	_, err := store.UpdateCustomer(context.Background(), "missing-id", CustomerUpdate{Name: &name})
	assert.Error(t, err)
}

func TestCreateQuoteResolvesCustomerName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	customer, err := store.CreateCustomer(ctx, Customer{Name: "Schulz GmbH"})
	require.NoError(t, err)

	quote, err := store.CreateQuote(ctx, Quote{
		CustomerID: customer.ID,
		Price:      2450.50,
		Volume:     35,
		Distance:   289,
		Comment:    "inkl. Halteverbotszone",
	})
	require.NoError(t, err)
	assert.Equal(t, "Schulz GmbH", quote.CustomerName)
	assert.Equal(t, "draft", quote.Status)

	quotes, err := store.Quotes(ctx)
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 2450.50, quotes[0].Price)
}

func TestCreateQuoteUnknownCustomer(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateQuote(context.Background(), Quote{CustomerID: "nope", Price: 100})
	assert.Error(t, err)
}

func TestCreateInvoice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	customer, err := store.CreateCustomer(ctx, Customer{Name: "Becker & Sohn"})
	require.NoError(t, err)

	inv, err := store.CreateInvoice(ctx, Invoice{
		CustomerID: customer.ID,
		TotalPrice: 3100,
		Status:     "paid",
	})
	require.NoError(t, err)
	assert.Equal(t, "Becker & Sohn", inv.CustomerName)

	invoices, err := store.Invoices(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "paid", invoices[0].Status)
}
