// Package memory is an in-process Store used by tests and DB_DRIVER=memory.
// A single mutex serialises every operation, which makes each guarded update atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/store"
)

type Store struct {
	mu           sync.Mutex
	accounts     map[string]*models.Account
	emails       map[string]string
	searches     []models.SearchRecord
	transactions []models.Transaction
	paymentRefs  map[string]struct{}
	tickets      map[string]*models.Ticket
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts:    make(map[string]*models.Account),
		emails:      make(map[string]string),
		paymentRefs: make(map[string]struct{}),
		tickets:     make(map[string]*models.Ticket),
	}
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) CreateAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, ok := s.emails[email]; ok {
		return apperr.ErrEmailTaken
	}
	if _, ok := s.accounts[account.ID]; ok {
		return apperr.ErrConflict
	}
	cp := *account
	s.accounts[account.ID] = &cp
	s.emails[email] = account.ID
	return nil
}

func (s *Store) GetAccount(_ context.Context, id string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return models.Account{}, apperr.ErrNotFound
	}
	return *a, nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return models.Account{}, apperr.ErrNotFound
	}
	return *s.accounts[id], nil
}

func (s *Store) ListAccounts(_ context.Context, page models.Page) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, page), nil
}

func (s *Store) SetRole(_ context.Context, accountID string, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return apperr.ErrNotFound
	}
	a.Role = role
	return nil
}

func (s *Store) ApplyDebit(_ context.Context, debit store.Debit) error {
	if err := debit.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyDebitLocked(debit)
}

func (s *Store) applyDebitLocked(debit store.Debit) error {
	a, ok := s.accounts[debit.AccountID]
	if !ok {
		return apperr.ErrNotFound
	}
	switch debit.Source {
	case store.SourceFreeTier:
		if a.FreeTierUsed+debit.Amount > models.FreeMOTLookups {
			return apperr.ErrInsufficientBalance
		}
		a.FreeTierUsed += debit.Amount
	case store.SourceCredits:
		if a.Credits.Get(debit.Product) < debit.Amount {
			return apperr.ErrInsufficientBalance
		}
		a.Credits.Add(debit.Product, -debit.Amount)
	}
	return nil
}

func (s *Store) AddCredits(_ context.Context, accountID string, product models.Product, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return apperr.ErrNotFound
	}
	a.Credits.Add(product, amount)
	return nil
}

func (s *Store) CommitSearch(_ context.Context, record *models.SearchRecord, debit store.Debit) error {
	if err := debit.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyDebitLocked(debit); err != nil {
		return err
	}
	s.searches = append(s.searches, *record)
	return nil
}

func (s *Store) ListSearches(_ context.Context, accountID string, page models.Page) ([]models.SearchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.SearchRecord
	for i := len(s.searches) - 1; i >= 0; i-- {
		if accountID == "" || s.searches[i].AccountID == accountID {
			out = append(out, s.searches[i])
		}
	}
	return paginate(out, page), nil
}

func (s *Store) ApplyPayment(_ context.Context, tx *models.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !tx.IsFreeGrant() {
		if _, dup := s.paymentRefs[tx.PaymentRef]; dup {
			return false, nil
		}
	}
	a, ok := s.accounts[tx.AccountID]
	if !ok {
		return false, apperr.ErrNotFound
	}
	a.Credits.Add(tx.Product, tx.Credits)
	if !tx.IsFreeGrant() {
		s.paymentRefs[tx.PaymentRef] = struct{}{}
	}
	s.transactions = append(s.transactions, *tx)
	return true, nil
}

func (s *Store) ListTransactions(_ context.Context, accountID string, page models.Page) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if accountID == "" || s.transactions[i].AccountID == accountID {
			out = append(out, s.transactions[i])
		}
	}
	return paginate(out, page), nil
}

func (s *Store) CreateTicket(_ context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[ticket.Reference]; ok {
		return apperr.ErrConflict
	}
	cp := cloneTicket(*ticket)
	s.tickets[ticket.Reference] = &cp
	return nil
}

func (s *Store) GetTicket(_ context.Context, reference string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[reference]
	if !ok {
		return models.Ticket{}, apperr.ErrNotFound
	}
	return cloneTicket(*t), nil
}

func (s *Store) UpdateTicket(_ context.Context, ticket *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tickets[ticket.Reference]
	if !ok {
		return apperr.ErrNotFound
	}
	if cur.Version != ticket.Version {
		return apperr.ErrConflict
	}
	ticket.Version++
	cp := cloneTicket(*ticket)
	s.tickets[ticket.Reference] = &cp
	return nil
}

func (s *Store) ListTickets(_ context.Context, filter models.TicketFilter, page models.Page) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Ticket
	for _, t := range s.tickets {
		if filter.AccountID != "" && t.AccountID != filter.AccountID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, cloneTicket(*t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return paginate(out, page), nil
}

func cloneTicket(t models.Ticket) models.Ticket {
	t.Messages = append([]models.TicketMessage(nil), t.Messages...)
	return t
}

func paginate[T any](items []T, page models.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}
