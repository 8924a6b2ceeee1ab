package snapshot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relocato/assistant/internal/crm"
)

// fakeService counts fetches and serves static data.
type fakeService struct {
	fetches   atomic.Int32
	customers []crm.Customer
	quotes    []crm.Quote
	invoices  []crm.Invoice
}

func (f *fakeService) Customers(context.Context) ([]crm.Customer, error) {
	f.fetches.Add(1)
	return f.customers, nil
}
func (f *fakeService) Quotes(context.Context) ([]crm.Quote, error)     { return f.quotes, nil }
func (f *fakeService) Invoices(context.Context) ([]crm.Invoice, error) { return f.invoices, nil }
func (f *fakeService) CreateCustomer(context.Context, crm.Customer) (*crm.Customer, error) {
	return nil, nil
}
func (f *fakeService) UpdateCustomer(context.Context, string, crm.CustomerUpdate) (*crm.Customer, error) {
	return nil, nil
}
func (f *fakeService) CreateQuote(context.Context, crm.Quote) (*crm.Quote, error)       { return nil, nil }
func (f *fakeService) CreateInvoice(context.Context, crm.Invoice) (*crm.Invoice, error) { return nil, nil }

func testData() *fakeService {
	return &fakeService{
		customers: []crm.Customer{
			{ID: "c1", Name: "Test GmbH", Email: "info@test.de", CurrentPhase: crm.PhaseAngerufen},
			{ID: "c2", Name: "Meyer KG", Phone: "+49 40 5555", CurrentPhase: crm.PhaseAngebotErstellt},
			{ID: "c3", Name: "Schulz", CurrentPhase: crm.PhaseAngerufen},
		},
		quotes: []crm.Quote{{ID: "q1", CustomerID: "c2", Price: 1800}},
		invoices: []crm.Invoice{
			{ID: "i1", CustomerID: "c2", TotalPrice: 1800, Status: "paid"},
			{ID: "i2", CustomerID: "c3", TotalPrice: 900, Status: "sent"},
		},
	}
}

func TestCacheServesWithinTTL(t *testing.T) {
	svc := testData()
	cache := NewCache(svc, 30*time.Second)

	now := time.Unix(1000, 0)
	cache.SetClock(func() time.Time { return now })

	first, err := cache.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), svc.fetches.Load())

	// t=10s: still fresh, identical statistics, no refetch.
	now = now.Add(10 * time.Second)
	second, err := cache.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), svc.fetches.Load())
	if diff := cmp.Diff(first.Stats, second.Stats); diff != "" {
		t.Errorf("stats changed within TTL (-first +second):\n%s", diff)
	}
}

func TestCacheRefetchesAfterExpiry(t *testing.T) {
	svc := testData()
	cache := NewCache(svc, 30*time.Second)

	now := time.Unix(1000, 0)
	cache.SetClock(func() time.Time { return now })

	_, err := cache.Get(context.Background(), false)
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	_, err = cache.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), svc.fetches.Load())
}

func TestCacheForceRefresh(t *testing.T) {
	svc := testData()
	cache := NewCache(svc, 30*time.Second)

	now := time.Unix(1000, 0)
	cache.SetClock(func() time.Time { return now })

	_, err := cache.Get(context.Background(), false)
	require.NoError(t, err)

	// t=10s, well within TTL, but forced.
	now = now.Add(10 * time.Second)
	_, err = cache.Get(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), svc.fetches.Load())
}

func TestCacheInvalidate(t *testing.T) {
	svc := testData()
	cache := NewCache(svc, 30*time.Second)

	_, err := cache.Get(context.Background(), false)
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.Get(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), svc.fetches.Load())
}

func TestComputeStats(t *testing.T) {
	svc := testData()
	cache := NewCache(svc, time.Minute)

	snap, err := cache.Get(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Stats.TotalCustomers)
	assert.Equal(t, 1, snap.Stats.TotalQuotes)
	assert.Equal(t, 2, snap.Stats.TotalInvoices)
	assert.Equal(t, 2, snap.Stats.CustomersByPhase[crm.PhaseAngerufen])
	assert.Equal(t, 1, snap.Stats.CustomersByPhase[crm.PhaseAngebotErstellt])
	// Only the paid invoice counts toward revenue.
	assert.Equal(t, 1800.0, snap.Stats.TotalRevenue)
}

func TestSearchCustomers(t *testing.T) {
	svc := testData()
	cache := NewCache(svc, time.Minute)
	snap, err := cache.Get(context.Background(), false)
	require.NoError(t, err)

	assert.Len(t, snap.SearchCustomers("test"), 1)
	assert.Len(t, snap.SearchCustomers("info@test.de"), 1)
	assert.Len(t, snap.SearchCustomers("+49 40"), 1)
	assert.Empty(t, snap.SearchCustomers("unbekannt"))
	assert.Empty(t, snap.SearchCustomers("  "))
}
