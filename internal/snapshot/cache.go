// Package snapshot caches a time-boxed view of aggregate business
// state for the planner prompt. A snapshot is reusable only while its
// age is below the TTL; expiry or a forced refresh triggers a full
// refetch and a full recompute of derived statistics.
package snapshot

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relocato/assistant/internal/crm"
	"github.com/relocato/assistant/internal/logging"
)

// Stats are the derived aggregates folded into the planner prompt.
type Stats struct {
	TotalCustomers   int
	TotalQuotes      int
	TotalInvoices    int
	CustomersByPhase map[crm.Phase]int
	TotalRevenue     float64 // sum of paid invoices
}

// Context is one immutable snapshot of business state.
type Context struct {
	Customers []crm.Customer
	Quotes    []crm.Quote
	Invoices  []crm.Invoice
	Stats     Stats
	FetchedAt time.Time
}

// SearchCustomers filters the snapshot by a case-insensitive substring
// match over name, email and phone.
func (c *Context) SearchCustomers(query string) []crm.Customer {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var matches []crm.Customer
	for _, customer := range c.Customers {
		if strings.Contains(strings.ToLower(customer.Name), q) ||
			strings.Contains(strings.ToLower(customer.Email), q) ||
			strings.Contains(strings.ToLower(customer.Phone), q) {
			matches = append(matches, customer)
		}
	}
	return matches
}

// CustomerByID returns the snapshot's copy of a customer, or nil.
func (c *Context) CustomerByID(id string) *crm.Customer {
	for i := range c.Customers {
		if c.Customers[i].ID == id {
			return &c.Customers[i]
		}
	}
	return nil
}

// Cache guards the current snapshot.
type Cache struct {
	service crm.Service
	ttl     time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	current *Context
}

// NewCache creates a cache over the business collaborator.
func NewCache(service crm.Service, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		service: service,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock injects a clock for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Get returns the cached snapshot while it is fresh, otherwise
// refetches. forceRefresh always refetches regardless of age.
// Two callers racing on expiry may both refetch; refresh is idempotent
// so the race is accepted.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) (*Context, error) {
	c.mu.RLock()
	current := c.current
	age := time.Duration(0)
	if current != nil {
		age = c.now().Sub(current.FetchedAt)
	}
	c.mu.RUnlock()

	if !forceRefresh && current != nil && age < c.ttl {
		logging.Get(logging.CategoryCache).Debug("Serving cached snapshot (age %v)", age)
		return current, nil
	}

	return c.refresh(ctx)
}

// refresh fetches all three aggregates concurrently and recomputes the
// derived statistics in full.
func (c *Cache) refresh(ctx context.Context) (*Context, error) {
	timer := logging.StartTimer(logging.CategoryCache, "refresh")
	defer timer.Stop()

	var (
		customers []crm.Customer
		quotes    []crm.Quote
		invoices  []crm.Invoice
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customers, err = c.service.Customers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		quotes, err = c.service.Quotes(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		invoices, err = c.service.Invoices(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot := &Context{
		Customers: customers,
		Quotes:    quotes,
		Invoices:  invoices,
		Stats:     computeStats(customers, quotes, invoices),
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	c.current = snapshot
	c.mu.Unlock()

	logging.Get(logging.CategoryCache).Info("Snapshot refreshed: %d customers, %d quotes, %d invoices, revenue %.2f",
		len(customers), len(quotes), len(invoices), snapshot.Stats.TotalRevenue)
	return snapshot, nil
}

// Invalidate drops the current snapshot so the next Get refetches.
// Called after any mutating action so the planner sees its own writes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func computeStats(customers []crm.Customer, quotes []crm.Quote, invoices []crm.Invoice) Stats {
	stats := Stats{
		TotalCustomers:   len(customers),
		TotalQuotes:      len(quotes),
		TotalInvoices:    len(invoices),
		CustomersByPhase: make(map[crm.Phase]int, len(crm.Phases)),
	}
	for _, customer := range customers {
		phase := customer.CurrentPhase
		if !phase.IsValid() {
			phase = crm.PhaseAngerufen
		}
		stats.CustomersByPhase[phase]++
	}
	for _, inv := range invoices {
		if inv.Status == "paid" {
			stats.TotalRevenue += inv.TotalPrice
		}
	}
	return stats
}
