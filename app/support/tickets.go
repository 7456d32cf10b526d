// Package support runs customer support tickets through their status lifecycle.
package support

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/mailer"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/store"
)

const (
	maxUpdateAttempts = 3
	maxSubjectLen     = 200
	maxMessageLen     = 10000
)

type Service struct {
	tickets      store.Tickets
	accounts     store.Accounts
	mailer       mailer.Mailer
	staffAddress string
	now          func() time.Time
	newReference func() (string, error)
}

func NewService(tickets store.Tickets, accounts store.Accounts, m mailer.Mailer, staffAddress string) *Service {
	return &Service{
		tickets:      tickets,
		accounts:     accounts,
		mailer:       m,
		staffAddress: staffAddress,
		now:          time.Now,
		newReference: NewReference,
	}
}

// Open creates a ticket carrying the requester's first message.
func (s *Service) Open(ctx context.Context, accountID string, req models.NewTicketRequest) (models.Ticket, error) {
	subject := strings.TrimSpace(req.Subject)
	body := strings.TrimSpace(req.Message)
	if subject == "" || len(subject) > maxSubjectLen {
		return models.Ticket{}, apperr.Invalid("subject is required and must be at most 200 characters")
	}
	if err := validateBody(body); err != nil {
		return models.Ticket{}, err
	}

	dept := req.Department
	if dept == "" {
		dept = models.DepartmentGeneral
	}
	if !dept.Valid() {
		return models.Ticket{}, apperr.Invalid(fmt.Sprintf("unknown department %q", req.Department))
	}
	prio := req.Priority
	if prio == "" {
		prio = models.PriorityMedium
	}
	if !prio.Valid() {
		return models.Ticket{}, apperr.Invalid(fmt.Sprintf("unknown priority %q", req.Priority))
	}

	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("ticket owner: %w", err)
	}
	email := strings.TrimSpace(req.ContactEmail)
	if email == "" {
		email = acct.Email
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.Ticket{}, apperr.Invalid("invalid contact email")
	}

	now := s.now().UTC()
	t := models.Ticket{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		ContactName:  strings.TrimSpace(req.ContactName),
		ContactEmail: email,
		Subject:      subject,
		Department:   dept,
		Priority:     prio,
		Status:       models.TicketOpen,
		Messages:     []models.TicketMessage{{Sender: models.SenderRequester, Author: req.ContactName, Body: body, CreatedAt: now}},
		CreatedAt:    now,
		LastUpdated:  now,
	}

	for attempt := 0; ; attempt++ {
		t.Reference, err = s.newReference()
		if err != nil {
			return models.Ticket{}, err
		}
		err = s.tickets.CreateTicket(ctx, &t)
		if !errors.Is(err, apperr.ErrConflict) || attempt+1 >= maxUpdateAttempts {
			break
		}
	}
	if err != nil {
		return models.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}

	s.notify(ctx, s.staffAddress, fmt.Sprintf("[%s] New ticket: %s", t.Reference, t.Subject), body)
	log.Info().Str("reference", t.Reference).Str("account_id", accountID).Msg("Support ticket opened")
	return t, nil
}

// ReplyAsRequester appends the owner's message. A reply to an answered ticket moves it
// to CUSTOMER_REPLY; other states are kept.
func (s *Service) ReplyAsRequester(ctx context.Context, accountID, reference, body string) (models.Ticket, error) {
	body = strings.TrimSpace(body)
	if err := validateBody(body); err != nil {
		return models.Ticket{}, err
	}
	t, err := s.update(ctx, reference, func(t *models.Ticket) error {
		if t.AccountID != accountID {
			return apperr.ErrUnauthorized
		}
		if t.Status == models.TicketClosed {
			return apperr.ErrTicketClosed
		}
		if t.Status == models.TicketAnswered {
			t.Status = models.TicketCustomerReply
		}
		s.appendMessage(t, models.SenderRequester, t.ContactName, body)
		return nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	s.notify(ctx, s.staffAddress, fmt.Sprintf("[%s] Customer reply: %s", t.Reference, t.Subject), body)
	return t, nil
}

// ReplyAsStaff appends a staff message and marks the ticket ANSWERED.
func (s *Service) ReplyAsStaff(ctx context.Context, staff, reference, body string) (models.Ticket, error) {
	body = strings.TrimSpace(body)
	if err := validateBody(body); err != nil {
		return models.Ticket{}, err
	}
	t, err := s.update(ctx, reference, func(t *models.Ticket) error {
		if t.Status == models.TicketClosed {
			return apperr.ErrTicketClosed
		}
		t.Status = models.TicketAnswered
		s.appendMessage(t, models.SenderStaff, staff, body)
		return nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	s.notify(ctx, t.ContactEmail, fmt.Sprintf("[%s] Reply to your ticket: %s", t.Reference, t.Subject), body)
	return t, nil
}

// SetStatus lets staff park, progress or close a ticket.
func (s *Service) SetStatus(ctx context.Context, staff, reference string, status models.TicketStatus) (models.Ticket, error) {
	switch status {
	case models.TicketInProgress, models.TicketOnHold, models.TicketClosed:
	default:
		return models.Ticket{}, apperr.Invalid(fmt.Sprintf("status %q cannot be set directly", status))
	}
	t, err := s.update(ctx, reference, func(t *models.Ticket) error {
		if t.Status == models.TicketClosed {
			return apperr.ErrTicketClosed
		}
		t.Status = status
		s.appendMessage(t, models.SenderSystem, staff, fmt.Sprintf("Status changed to %s", status))
		return nil
	})
	if err != nil {
		return models.Ticket{}, err
	}
	if status == models.TicketClosed {
		s.notify(ctx, t.ContactEmail, fmt.Sprintf("[%s] Ticket closed: %s", t.Reference, t.Subject),
			"Your ticket has been closed. Open a new ticket if you need more help.")
	}
	return t, nil
}

// Get returns a ticket to its owner or to staff.
func (s *Service) Get(ctx context.Context, accountID string, staff bool, reference string) (models.Ticket, error) {
	t, err := s.tickets.GetTicket(ctx, reference)
	if err != nil {
		return models.Ticket{}, err
	}
	if !staff && t.AccountID != accountID {
		return models.Ticket{}, apperr.ErrUnauthorized
	}
	return t, nil
}

func (s *Service) ListForAccount(ctx context.Context, accountID string, page models.Page) ([]models.Ticket, error) {
	if accountID == "" {
		return nil, apperr.ErrNotAuthenticated
	}
	return s.tickets.ListTickets(ctx, models.TicketFilter{AccountID: accountID}, page)
}

// List is the staff view over every ticket, optionally narrowed to one status.
func (s *Service) List(ctx context.Context, status models.TicketStatus, page models.Page) ([]models.Ticket, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Invalid(fmt.Sprintf("unknown status %q", status))
	}
	return s.tickets.ListTickets(ctx, models.TicketFilter{Status: status}, page)
}

// update applies mutate to a fresh copy of the ticket and saves it, retrying when a
// concurrent writer got there first.
func (s *Service) update(ctx context.Context, reference string, mutate func(*models.Ticket) error) (models.Ticket, error) {
	var err error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var t models.Ticket
		t, err = s.tickets.GetTicket(ctx, reference)
		if err != nil {
			return models.Ticket{}, err
		}
		if err = mutate(&t); err != nil {
			return models.Ticket{}, err
		}
		err = s.tickets.UpdateTicket(ctx, &t)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return models.Ticket{}, err
		}
	}
	return models.Ticket{}, fmt.Errorf("update ticket %s: %w", reference, err)
}

func (s *Service) appendMessage(t *models.Ticket, sender models.SenderRole, author, body string) {
	now := s.now().UTC()
	t.Messages = append(t.Messages, models.TicketMessage{Sender: sender, Author: author, Body: body, CreatedAt: now})
	t.LastUpdated = now
}

func (s *Service) notify(ctx context.Context, to, subject, body string) {
	if to == "" {
		return
	}
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		log.Error().Err(err).Str("to", to).Str("subject", subject).Msg("Ticket notification failed")
	}
}

func validateBody(body string) error {
	if body == "" || len(body) > maxMessageLen {
		return apperr.Invalid("message is required and must be at most 10000 characters")
	}
	return nil
}
