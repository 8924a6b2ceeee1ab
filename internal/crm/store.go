package crm

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/relocato/assistant/internal/logging"
)

// Store is the SQLite implementation of Service.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the CRM database at path.
// Use ":memory:" for tests.
func NewStore(path string) (*Store, error) {
	log := logging.Get(logging.CategoryCRM)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	store := &Store{db: db}
	if err := store.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info("CRM store opened at %s", path)
	return store, nil
}

func (s *Store) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		from_address TEXT,
		to_address TEXT,
		moving_date TEXT,
		apartment TEXT,
		services TEXT,
		current_phase TEXT NOT NULL DEFAULT 'angerufen',
		notes TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_customers_phase ON customers(current_phase);
	CREATE INDEX IF NOT EXISTS idx_customers_name ON customers(name);

	CREATE TABLE IF NOT EXISTS quotes (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		customer_name TEXT,
		price REAL NOT NULL,
		volume REAL,
		distance REAL,
		comment TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		created_by TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (customer_id) REFERENCES customers(id)
	);
	CREATE INDEX IF NOT EXISTS idx_quotes_customer ON quotes(customer_id);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		customer_name TEXT,
		quote_id TEXT,
		total_price REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (customer_id) REFERENCES customers(id)
	);
	CREATE INDEX IF NOT EXISTS idx_invoices_customer ON invoices(customer_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================================================
// READS
// ============================================================================

// Customers returns all customer records.
func (s *Store) Customers(ctx context.Context) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, from_address, to_address, moving_date,
		       apartment, services, current_phase, notes, created_at, updated_at
		FROM customers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

// Quotes returns all quotes.
func (s *Store) Quotes(ctx context.Context) ([]Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, customer_name, price, volume, distance, comment, status, created_by, created_at
		FROM quotes ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		var q Quote
		var comment, createdBy, customerName sql.NullString
		if err := rows.Scan(&q.ID, &q.CustomerID, &customerName, &q.Price, &q.Volume, &q.Distance,
			&comment, &q.Status, &createdBy, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		q.CustomerName = customerName.String
		q.Comment = comment.String
		q.CreatedBy = createdBy.String
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// Invoices returns all invoices.
func (s *Store) Invoices(ctx context.Context) ([]Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, customer_name, quote_id, total_price, status, created_at
		FROM invoices ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		var quoteID, customerName sql.NullString
		if err := rows.Scan(&inv.ID, &inv.CustomerID, &customerName, &quoteID,
			&inv.TotalPrice, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		inv.CustomerName = customerName.String
		inv.QuoteID = quoteID.String
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ============================================================================
// WRITES
// ============================================================================

// CreateCustomer inserts a customer, assigning an id and default phase
// when missing.
func (s *Store) CreateCustomer(ctx context.Context, c Customer) (*Customer, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("customer name required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CurrentPhase == "" {
		c.CurrentPhase = PhaseAngerufen
	}
	if !c.CurrentPhase.IsValid() {
		return nil, fmt.Errorf("unknown pipeline phase: %s", c.CurrentPhase)
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	apartment, err := json.Marshal(c.Apartment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal apartment: %w", err)
	}
	services, err := json.Marshal(c.Services)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal services: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, from_address, to_address, moving_date,
		                       apartment, services, current_phase, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.FromAddress, c.ToAddress, c.MovingDate,
		string(apartment), string(services), string(c.CurrentPhase), c.Notes, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert customer: %w", err)
	}

	logging.Get(logging.CategoryCRM).Info("Customer created: id=%s name=%s", c.ID, c.Name)
	return &c, nil
}

// UpdateCustomer applies a partial update and returns the fresh record.
func (s *Store) UpdateCustomer(ctx context.Context, id string, u CustomerUpdate) (*Customer, error) {
	if id == "" {
		return nil, fmt.Errorf("customer id required")
	}
	if u.CurrentPhase != nil && !u.CurrentPhase.IsValid() {
		return nil, fmt.Errorf("unknown pipeline phase: %s", *u.CurrentPhase)
	}

	set := "updated_at = ?"
	args := []interface{}{time.Now().UTC()}
	appendSet := func(column string, value interface{}) {
		set += ", " + column + " = ?"
		args = append(args, value)
	}
	if u.Name != nil {
		appendSet("name", *u.Name)
	}
	if u.Email != nil {
		appendSet("email", *u.Email)
	}
	if u.Phone != nil {
		appendSet("phone", *u.Phone)
	}
	if u.FromAddress != nil {
		appendSet("from_address", *u.FromAddress)
	}
	if u.ToAddress != nil {
		appendSet("to_address", *u.ToAddress)
	}
	if u.MovingDate != nil {
		appendSet("moving_date", *u.MovingDate)
	}
	if u.CurrentPhase != nil {
		appendSet("current_phase", string(*u.CurrentPhase))
	}
	if u.Notes != nil {
		appendSet("notes", *u.Notes)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, "UPDATE customers SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return nil, fmt.Errorf("customer not found: %s", id)
	}

	return s.customerByID(ctx, id)
}

// CreateQuote inserts a quote, resolving the customer name from the
// customer record when not supplied.
func (s *Store) CreateQuote(ctx context.Context, q Quote) (*Quote, error) {
	if q.CustomerID == "" {
		return nil, fmt.Errorf("quote customer id required")
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Status == "" {
		q.Status = "draft"
	}
	if q.CustomerName == "" {
		customer, err := s.customerByID(ctx, q.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("quote references unknown customer: %w", err)
		}
		q.CustomerName = customer.Name
	}
	q.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quotes (id, customer_id, customer_name, price, volume, distance, comment, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.CustomerID, q.CustomerName, q.Price, q.Volume, q.Distance, q.Comment, q.Status, q.CreatedBy, q.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert quote: %w", err)
	}

	logging.Get(logging.CategoryCRM).Info("Quote created: id=%s customer=%s price=%.2f", q.ID, q.CustomerID, q.Price)
	return &q, nil
}

// CreateInvoice inserts an invoice.
func (s *Store) CreateInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	if inv.CustomerID == "" {
		return nil, fmt.Errorf("invoice customer id required")
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = "draft"
	}
	if inv.CustomerName == "" {
		customer, err := s.customerByID(ctx, inv.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("invoice references unknown customer: %w", err)
		}
		inv.CustomerName = customer.Name
	}
	inv.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (id, customer_id, customer_name, quote_id, total_price, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.CustomerID, inv.CustomerName, inv.QuoteID, inv.TotalPrice, inv.Status, inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	logging.Get(logging.CategoryCRM).Info("Invoice created: id=%s customer=%s total=%.2f", inv.ID, inv.CustomerID, inv.TotalPrice)
	return &inv, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Store) customerByID(ctx context.Context, id string) (*Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, from_address, to_address, moving_date,
		       apartment, services, current_phase, notes, created_at, updated_at
		FROM customers WHERE id = ?`, id)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("customer not found: %s", id)
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row rowScanner) (*Customer, error) {
	var c Customer
	var email, phone, fromAddr, toAddr, movingDate, apartment, services, notes sql.NullString
	var phase string
	if err := row.Scan(&c.ID, &c.Name, &email, &phone, &fromAddr, &toAddr, &movingDate,
		&apartment, &services, &phase, &notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}
	c.Email = email.String
	c.Phone = phone.String
	c.FromAddress = fromAddr.String
	c.ToAddress = toAddr.String
	c.MovingDate = movingDate.String
	c.Notes = notes.String
	c.CurrentPhase = Phase(phase)
	if apartment.Valid && apartment.String != "" {
		if err := json.Unmarshal([]byte(apartment.String), &c.Apartment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal apartment: %w", err)
		}
	}
	if services.Valid && services.String != "" {
		if err := json.Unmarshal([]byte(services.String), &c.Services); err != nil {
			return nil, fmt.Errorf("failed to unmarshal services: %w", err)
		}
	}
	return &c, nil
}
