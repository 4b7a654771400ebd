// Package journal records the merchant's side of gateway payments: the
// payments it created and every exchange made for them.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

var (
	ErrNotFound = fmt.Errorf("not found")
	ErrConflict = fmt.Errorf("conflict")
)

//go:embed schema.sql
var schema string

// Payment is a payment created through the gateway.
type Payment struct {
	PayID     string
	OrderNo   string
	Amount    int64
	Currency  string
	Status    models.PaymentStatus
	// OrigPayID is the template payment of a one-click payment.
	OrigPayID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry is one gateway exchange.
type Entry struct {
	ID         string
	PayID      string
	Operation  string
	ResultCode models.ResultCode
	Status     models.PaymentStatus
	CreatedAt  time.Time
}

// Journal stores payments in memory or, when built with NewPG, in Postgres.
type Journal struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	orders   map[string]string
	entries  []*Entry

	db *sql.DB
}

func New() *Journal {
	return &Journal{
		payments: make(map[string]*Payment),
		orders:   make(map[string]string),
	}
}

// NewPG constructs a db-backed journal. Call Migrate before first use.
func NewPG(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Migrate creates the journal tables if they do not exist.
func (j *Journal) Migrate(ctx context.Context) error {
	if j.db == nil {
		return nil
	}
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating journal: %w", err)
	}
	return nil
}

func (j *Journal) CreatePayment(ctx context.Context, p *Payment) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	p.Currency = strings.ToUpper(p.Currency)

	if j.db == nil {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, ok := j.payments[p.PayID]; ok {
			return fmt.Errorf("payment %s exists: %w", p.PayID, ErrConflict)
		}
		if _, ok := j.orders[p.OrderNo]; ok {
			return fmt.Errorf("order number %s exists: %w", p.OrderNo, ErrConflict)
		}
		cp := *p
		j.payments[p.PayID] = &cp
		j.orders[p.OrderNo] = p.PayID
		return nil
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO csob.payments(pay_id, order_no, amount, currency, status, orig_pay_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
	`, p.PayID, p.OrderNo, p.Amount, p.Currency, int(p.Status), p.OrigPayID, p.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (j *Journal) GetPayment(ctx context.Context, payID string) (*Payment, error) {
	if j.db == nil {
		j.mu.RLock()
		defer j.mu.RUnlock()
		p, ok := j.payments[payID]
		if !ok {
			return nil, ErrNotFound
		}
		cp := *p
		return &cp, nil
	}
	row := j.db.QueryRowContext(ctx, `
		SELECT pay_id, order_no, amount, currency, status, orig_pay_id, created_at, updated_at
		  FROM csob.payments WHERE pay_id=$1`, payID)
	var p Payment
	var status int
	if err := row.Scan(&p.PayID, &p.OrderNo, &p.Amount, &p.Currency, &status, &p.OrigPayID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	return &p, nil
}

// UpdateStatus stores the latest status reported by the gateway.
func (j *Journal) UpdateStatus(ctx context.Context, payID string, status models.PaymentStatus) error {
	if j.db == nil {
		j.mu.Lock()
		defer j.mu.Unlock()
		p, ok := j.payments[payID]
		if !ok {
			return ErrNotFound
		}
		p.Status = status
		p.UpdatedAt = time.Now().UTC()
		return nil
	}
	res, err := j.db.ExecContext(ctx, `UPDATE csob.payments SET status=$2, updated_at=now() WHERE pay_id=$1`, payID, int(status))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistsOrderNo reports whether an order number was already used.
func (j *Journal) ExistsOrderNo(ctx context.Context, orderNo string) (bool, error) {
	if j.db == nil {
		j.mu.RLock()
		defer j.mu.RUnlock()
		_, ok := j.orders[orderNo]
		return ok, nil
	}
	var exists bool
	err := j.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM csob.payments WHERE order_no=$1)`, orderNo).Scan(&exists)
	return exists, err
}

// Record appends an exchange. ID and CreatedAt are filled in when empty.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if j.db == nil {
		j.mu.Lock()
		defer j.mu.Unlock()
		cp := *e
		j.entries = append(j.entries, &cp)
		return nil
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO csob.exchanges(entry_id, pay_id, operation, result_code, payment_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.PayID, e.Operation, int(e.ResultCode), int(e.Status), e.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// Entries returns the exchanges of a payment, oldest first.
func (j *Journal) Entries(ctx context.Context, payID string) ([]*Entry, error) {
	if j.db == nil {
		j.mu.RLock()
		defer j.mu.RUnlock()
		var out []*Entry
		for _, e := range j.entries {
			if e.PayID == payID {
				cp := *e
				out = append(out, &cp)
			}
		}
		sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
		return out, nil
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT entry_id, pay_id, operation, result_code, payment_status, created_at
		  FROM csob.exchanges WHERE pay_id=$1 ORDER BY created_at ASC`, payID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		var e Entry
		var code, status int
		if err := rows.Scan(&e.ID, &e.PayID, &e.Operation, &code, &status, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ResultCode = models.ResultCode(code)
		e.Status = models.PaymentStatus(status)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Ping returns DB readiness
func (j *Journal) Ping(ctx context.Context) error {
	if j.db == nil {
		return nil
	}
	return j.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
