// Package postgres implements store.Store on PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/config"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/store"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// DSN builds the connection string from config.
func DSN(cfg config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   cfg.URL + ":" + cfg.Port,
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	d, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	log.Info().Str("host", cfg.URL).Str("database", cfg.Database).Msg("Connected to Postgres")
	return &Store{db: d}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// creditColumn maps a product onto its balance column. The result is only ever one of
// the fixed names below, so it is safe to splice into SQL.
func creditColumn(p models.Product) (string, error) {
	switch p {
	case models.ProductMOT:
		return "mot_credits", nil
	case models.ProductVDI:
		return "vdi_credits", nil
	case models.ProductValuation:
		return "valuation_credits", nil
	}
	return "", apperr.Invalid(fmt.Sprintf("unknown product %q", p))
}

const accountColumns = `id, email, password_hash, role, free_tier_used, mot_credits, vdi_credits, valuation_credits, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Role,
		&a.FreeTierUsed,
		&a.Credits.MOT,
		&a.Credits.VDI,
		&a.Credits.Valuation,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, apperr.ErrNotFound
	}
	return a, err
}

func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, free_tier_used, mot_credits, vdi_credits, valuation_credits, created_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7, $8, $9);
	`, a.ID, a.Email, a.PasswordHash, a.Role, a.FreeTierUsed, a.Credits.MOT, a.Credits.VDI, a.Credits.Valuation, a.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.ErrEmailTaken
	}
	return err
}

func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1;`, id))
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = lower($1);`, email))
}

func (s *Store) ListAccounts(ctx context.Context, page models.Page) ([]models.Account, error) {
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2;
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SetRole(ctx context.Context, accountID string, role models.Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET role = $2 WHERE id = $1;`, accountID, role)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// applyDebit runs the guarded decrement as one UPDATE, so concurrent debits on the same
// account serialise on the row lock and the guard is re-evaluated for each.
func applyDebit(ctx context.Context, q execer, debit store.Debit) error {
	if err := debit.Validate(); err != nil {
		return err
	}

	var (
		res sql.Result
		err error
	)
	switch debit.Source {
	case store.SourceFreeTier:
		res, err = q.ExecContext(ctx, `
			UPDATE accounts
			SET free_tier_used = free_tier_used + $2
			WHERE id = $1 AND free_tier_used + $2 <= $3;
		`, debit.AccountID, debit.Amount, models.FreeMOTLookups)
	case store.SourceCredits:
		col, cerr := creditColumn(debit.Product)
		if cerr != nil {
			return cerr
		}
		res, err = q.ExecContext(ctx, fmt.Sprintf(`
			UPDATE accounts
			SET %[1]s = %[1]s - $2
			WHERE id = $1 AND %[1]s >= $2;
		`, col), debit.AccountID, debit.Amount)
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1);`, debit.AccountID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.ErrNotFound
	}
	return apperr.ErrInsufficientBalance
}

func (s *Store) ApplyDebit(ctx context.Context, debit store.Debit) error {
	return applyDebit(ctx, s.db, debit)
}

func addCredits(ctx context.Context, q execer, accountID string, product models.Product, amount int) error {
	col, err := creditColumn(product)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, fmt.Sprintf(`
		UPDATE accounts
		SET %[1]s = %[1]s + $2
		WHERE id = $1;
	`, col), accountID, amount)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Store) AddCredits(ctx context.Context, accountID string, product models.Product, amount int) error {
	return addCredits(ctx, s.db, accountID, product, amount)
}

func (s *Store) CommitSearch(ctx context.Context, record *models.SearchRecord, debit store.Debit) error {
	// JSONB goes in as a string; lib/pq would encode []byte as bytea.
	report, err := json.Marshal(record.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO search_records (id, account_id, registration, product, report, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`, record.ID, record.AccountID, record.Registration, record.Product, string(report), record.CreatedAt)
	if err != nil {
		return err
	}

	if err := applyDebit(ctx, tx, debit); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListSearches(ctx context.Context, accountID string, page models.Page) ([]models.SearchRecord, error) {
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, registration, product, report, created_at
		FROM search_records
		WHERE ($1 = '' OR account_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`, accountID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SearchRecord{}
	for rows.Next() {
		var (
			r      models.SearchRecord
			report []byte
		)
		if err := rows.Scan(&r.ID, &r.AccountID, &r.Registration, &r.Product, &report, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(report, &r.Report); err != nil {
			return nil, fmt.Errorf("decode report %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ApplyPayment relies on the partial unique index over payment_ref: a concurrent
// duplicate either waits for the first insert and then conflicts, or conflicts at once.
func (s *Store) ApplyPayment(ctx context.Context, t *models.Transaction) (bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var insertedID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO transactions (id, account_id, payment_ref, credits, product, amount_paid, currency, created_at)
		SELECT $1::text, $2::text, $3::text, $4::int, $5::text, $6::bigint, $7::text, $8::timestamptz
		WHERE EXISTS (SELECT 1 FROM accounts WHERE id = $2::text)
		ON CONFLICT (payment_ref) WHERE payment_ref <> 'FREE_GRANT' DO NOTHING
		RETURNING id;
	`, t.ID, t.AccountID, t.PaymentRef, t.Credits, t.Product, t.AmountPaid, t.Currency, t.CreatedAt).Scan(&insertedID)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1);`, t.AccountID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, apperr.ErrNotFound
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := addCredits(ctx, tx, t.AccountID, t.Product, t.Credits); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID string, page models.Page) ([]models.Transaction, error) {
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, payment_ref, credits, product, amount_paid, currency, created_at
		FROM transactions
		WHERE ($1 = '' OR account_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`, accountID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.PaymentRef, &t.Credits, &t.Product, &t.AmountPaid, &t.Currency, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const ticketColumns = `id, reference, account_id, contact_name, contact_email, subject, department, priority, status, messages, created_at, last_updated, version`

func scanTicket(row rowScanner) (models.Ticket, error) {
	var (
		t        models.Ticket
		messages []byte
	)
	err := row.Scan(
		&t.ID,
		&t.Reference,
		&t.AccountID,
		&t.ContactName,
		&t.ContactEmail,
		&t.Subject,
		&t.Department,
		&t.Priority,
		&t.Status,
		&messages,
		&t.CreatedAt,
		&t.LastUpdated,
		&t.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ticket{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Ticket{}, err
	}
	if err := json.Unmarshal(messages, &t.Messages); err != nil {
		return models.Ticket{}, fmt.Errorf("decode messages %s: %w", t.Reference, err)
	}
	return t, nil
}

func (s *Store) CreateTicket(ctx context.Context, t *models.Ticket) error {
	messages, err := json.Marshal(t.Messages)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO support_tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`, t.ID, t.Reference, t.AccountID, t.ContactName, t.ContactEmail, t.Subject, t.Department, t.Priority, t.Status, string(messages), t.CreatedAt, t.LastUpdated, t.Version)
	if isUniqueViolation(err) {
		return apperr.ErrConflict
	}
	return err
}

func (s *Store) GetTicket(ctx context.Context, reference string) (models.Ticket, error) {
	return scanTicket(s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE reference = $1;`, reference))
}

func (s *Store) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	messages, err := json.Marshal(t.Messages)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE support_tickets
		SET status = $3, priority = $4, messages = $5, last_updated = $6, version = version + 1
		WHERE reference = $1 AND version = $2;
	`, t.Reference, t.Version, t.Status, t.Priority, string(messages), t.LastUpdated)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetTicket(ctx, t.Reference); err != nil {
			return err
		}
		return apperr.ErrConflict
	}
	t.Version++
	return nil
}

func (s *Store) ListTickets(ctx context.Context, filter models.TicketFilter, page models.Page) ([]models.Ticket, error) {
	page = page.Normalize()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM support_tickets
		WHERE ($1 = '' OR account_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY last_updated DESC
		LIMIT $3 OFFSET $4;
	`, filter.AccountID, string(filter.Status), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
