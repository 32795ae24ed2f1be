// Package storage persists debtors, transactions and payments in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"nasiya/internal/core"
	"nasiya/internal/seed"

	_ "modernc.org/sqlite"
)

// Sync states of a payment row.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

const timeLayout = time.RFC3339

// Payment is a stored payment row.
type Payment struct {
	ID             int64
	DebtorID       string
	DebtorName     string
	Date           string
	Time           string
	DurationMonths int
	Amount         int64
	Applied        int64
	Note           string
	SyncStatus     string
	ImageCount     int
	CreatedAt      time.Time
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newRepository(db), nil
}

func newRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const debtorColumns = `id, full_name, address, description, store, phone_numbers, images,
	amount, is_starred, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDebtor(row scanner) (core.Debtor, error) {
	var (
		d                core.Debtor
		phones, images   string
		created, updated string
	)
	if err := row.Scan(&d.ID, &d.FullName, &d.Address, &d.Description, &d.Store,
		&phones, &images, &d.Amount, &d.IsStarred, &created, &updated); err != nil {
		return core.Debtor{}, err
	}
	if err := json.Unmarshal([]byte(phones), &d.PhoneNumbers); err != nil {
		return core.Debtor{}, fmt.Errorf("decode phone numbers of %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(images), &d.Images); err != nil {
		return core.Debtor{}, fmt.Errorf("decode images of %s: %w", d.ID, err)
	}
	d.CreatedAt, _ = time.Parse(timeLayout, created)
	d.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return d, nil
}

// ListDebtors returns every debtor in insertion order.
func (r *SQLiteRepository) ListDebtors(ctx context.Context) ([]core.Debtor, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+debtorColumns+` FROM debtors ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list debtors: %w", err)
	}
	defer rows.Close()

	var debtors []core.Debtor
	for rows.Next() {
		d, err := scanDebtor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debtor: %w", err)
		}
		debtors = append(debtors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate debtors: %w", err)
	}
	return debtors, nil
}

// GetDebtor returns one debtor or core.ErrNotFound.
func (r *SQLiteRepository) GetDebtor(ctx context.Context, id string) (core.Debtor, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+debtorColumns+` FROM debtors WHERE id = ?`, id)
	d, err := scanDebtor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Debtor{}, fmt.Errorf("debtor %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Debtor{}, fmt.Errorf("get debtor %s: %w", id, err)
	}
	return d, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetDebtorDetails returns the transactions of a debtor in display order.
// TotalDebt is the sum of the outstanding balances.
func (r *SQLiteRepository) GetDebtorDetails(ctx context.Context, id string) (core.DebtorDetails, error) {
	return loadDetails(ctx, r.db, id)
}

func loadDetails(ctx context.Context, q querier, id string) (core.DebtorDetails, error) {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM debtors WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DebtorDetails{}, fmt.Errorf("debtor %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.DebtorDetails{}, fmt.Errorf("check debtor %s: %w", id, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, date, amount, paid_amount, next_payment_date
		FROM transactions
		WHERE debtor_id = ?
		ORDER BY position, id`, id)
	if err != nil {
		return core.DebtorDetails{}, fmt.Errorf("list transactions of %s: %w", id, err)
	}
	defer rows.Close()

	details := core.DebtorDetails{ID: id}
	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.Date, &t.Amount, &t.PaidAmount, &t.NextPaymentDate); err != nil {
			return core.DebtorDetails{}, fmt.Errorf("scan transaction: %w", err)
		}
		details.Transactions = append(details.Transactions, t)
		details.TotalDebt += t.Outstanding()
	}
	if err := rows.Err(); err != nil {
		return core.DebtorDetails{}, fmt.Errorf("iterate transactions: %w", err)
	}
	return details, nil
}

// SetStarred updates the starred flag.
func (r *SQLiteRepository) SetStarred(ctx context.Context, id string, starred bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debtors SET is_starred = ?, updated_at = ? WHERE id = ?`,
		starred, r.stamp(), id)
	if err != nil {
		return fmt.Errorf("set starred %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set starred %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("debtor %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// RecordPayment stores the payment and its images, spreads the amount over
// the open transactions oldest first and lowers the debtor balance by what
// was applied. It returns the new payment id.
func (r *SQLiteRepository) RecordPayment(ctx context.Context, p core.Payment) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin payment: %w", err)
	}
	defer tx.Rollback()

	before, err := loadDetails(ctx, tx, p.DebtorID)
	if err != nil {
		return 0, err
	}
	after, applied := core.ApplyPayment(before, p.Amount)
	for i, t := range after.Transactions {
		if t.PaidAmount == before.Transactions[i].PaidAmount {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET paid_amount = ? WHERE id = ?`, t.PaidAmount, t.ID); err != nil {
			return 0, fmt.Errorf("update transaction %s: %w", t.ID, err)
		}
	}

	now := r.stamp()
	if _, err := tx.ExecContext(ctx,
		`UPDATE debtors SET amount = amount - ?, updated_at = ? WHERE id = ?`,
		applied, now, p.DebtorID); err != nil {
		return 0, fmt.Errorf("update debtor balance: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO payments (debtor_id, paid_on, paid_at, duration_months, amount, applied, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.DebtorID, p.Date, p.Time, p.DurationMonths, p.Amount, applied, p.Note, now)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("payment id: %w", err)
	}

	for slot, img := range p.Images {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO payment_images (payment_id, slot, name, content_type, data)
			VALUES (?, ?, ?, ?, ?)`,
			id, slot, img.Name, img.ContentType, img.Data); err != nil {
			return 0, fmt.Errorf("insert payment image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment saved to SQLite",
		"id", id,
		"debtor_id", p.DebtorID,
		"amount", p.Amount,
		"applied", applied,
		"images", len(p.Images))
	return id, nil
}

const paymentColumns = `p.id, p.debtor_id, d.full_name, p.paid_on, p.paid_at, p.duration_months,
	p.amount, p.applied, p.note, p.sync_status, p.created_at,
	(SELECT COUNT(*) FROM payment_images i WHERE i.payment_id = p.id)`

func scanPayment(row scanner) (Payment, error) {
	var (
		p       Payment
		created string
	)
	if err := row.Scan(&p.ID, &p.DebtorID, &p.DebtorName, &p.Date, &p.Time, &p.DurationMonths,
		&p.Amount, &p.Applied, &p.Note, &p.SyncStatus, &created, &p.ImageCount); err != nil {
		return Payment{}, err
	}
	p.CreatedAt, _ = time.Parse(timeLayout, created)
	return p, nil
}

// GetPayment returns one stored payment.
func (r *SQLiteRepository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments p JOIN debtors d ON d.id = p.debtor_id
		WHERE p.id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, fmt.Errorf("payment %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return Payment{}, fmt.Errorf("get payment %d: %w", id, err)
	}
	return p, nil
}

// PendingPayments returns up to limit payments not yet synced, oldest first.
// Rows marked as error are retried too.
func (r *SQLiteRepository) PendingPayments(ctx context.Context, limit int) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments p JOIN debtors d ON d.id = p.debtor_id
		WHERE p.sync_status IN ('pending', 'error')
		ORDER BY p.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending payments: %w", err)
	}
	return out, nil
}

// MarkPaymentSynced marks a payment as written to the ledger.
func (r *SQLiteRepository) MarkPaymentSynced(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE payments SET sync_status = 'synced', sync_error = '', synced_at = ? WHERE id = ?`,
		r.stamp(), id); err != nil {
		return fmt.Errorf("mark payment synced: %w", err)
	}
	slog.InfoContext(ctx, "Payment marked as synced", "id", id)
	return nil
}

// MarkPaymentError records a failed ledger write.
func (r *SQLiteRepository) MarkPaymentError(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE payments SET sync_status = 'error', sync_error = ? WHERE id = ?`, msg, id); err != nil {
		return fmt.Errorf("mark payment sync error: %w", err)
	}
	slog.WarnContext(ctx, "Payment marked with sync error", "id", id, "error", msg)
	return nil
}

// SeedIfEmpty loads data into an empty debtors table. It reports whether
// anything was inserted.
func (r *SQLiteRepository) SeedIfEmpty(ctx context.Context, data seed.Data) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM debtors`).Scan(&count); err != nil {
		return false, fmt.Errorf("count debtors: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, d := range data.Debtors {
		phones, err := json.Marshal(nonNil(d.PhoneNumbers))
		if err != nil {
			return false, err
		}
		images, err := json.Marshal(nonNil(d.Images))
		if err != nil {
			return false, err
		}
		created, updated := r.stampOf(d.CreatedAt), r.stampOf(d.UpdatedAt)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO debtors (id, full_name, address, description, store, phone_numbers, images,
				amount, is_starred, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.FullName, d.Address, d.Description, d.Store, string(phones), string(images),
			d.Amount, d.IsStarred, created, updated); err != nil {
			return false, fmt.Errorf("insert debtor %s: %w", d.ID, err)
		}

		for pos, t := range data.DetailsFor(d.ID).Transactions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transactions (id, debtor_id, position, date, amount, paid_amount, next_payment_date)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				d.ID+"-"+t.ID, d.ID, pos, t.Date, t.Amount, t.PaidAmount, t.NextPaymentDate); err != nil {
				return false, fmt.Errorf("insert transaction %s of %s: %w", t.ID, d.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit seed: %w", err)
	}
	slog.InfoContext(ctx, "Seeded SQLite database", "debtors", len(data.Debtors))
	return true, nil
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(timeLayout)
}

func (r *SQLiteRepository) stampOf(t time.Time) string {
	if t.IsZero() {
		return r.stamp()
	}
	return t.UTC().Format(timeLayout)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
