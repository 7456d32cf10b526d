package models

import "time"

type TicketStatus string

const (
	TicketOpen          TicketStatus = "OPEN"
	TicketAnswered      TicketStatus = "ANSWERED"
	TicketCustomerReply TicketStatus = "CUSTOMER_REPLY"
	TicketOnHold        TicketStatus = "ON_HOLD"
	TicketInProgress    TicketStatus = "IN_PROGRESS"
	TicketClosed        TicketStatus = "CLOSED"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketAnswered, TicketCustomerReply, TicketOnHold, TicketInProgress, TicketClosed:
		return true
	}
	return false
}

type Department string

const (
	DepartmentGeneral   Department = "GENERAL"
	DepartmentBilling   Department = "BILLING"
	DepartmentTechnical Department = "TECHNICAL"
	DepartmentReports   Department = "REPORTS"
)

func (d Department) Valid() bool {
	switch d {
	case DepartmentGeneral, DepartmentBilling, DepartmentTechnical, DepartmentReports:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type SenderRole string

const (
	SenderRequester SenderRole = "requester"
	SenderStaff     SenderRole = "staff"
	SenderSystem    SenderRole = "system"
)

type TicketMessage struct {
	Sender    SenderRole `json:"sender" bson:"sender"`
	Author    string     `json:"author,omitempty" bson:"author,omitempty"`
	Body      string     `json:"body" bson:"body"`
	CreatedAt time.Time  `json:"createdAt" bson:"created_at"`
}

type Ticket struct {
	ID           string          `json:"id" bson:"_id"`
	Reference    string          `json:"reference" bson:"reference"`
	AccountID    string          `json:"accountId" bson:"account_id"`
	ContactName  string          `json:"contactName" bson:"contact_name"`
	ContactEmail string          `json:"contactEmail" bson:"contact_email"`
	Subject      string          `json:"subject" bson:"subject"`
	Department   Department      `json:"department" bson:"department"`
	Priority     Priority        `json:"priority" bson:"priority"`
	Status       TicketStatus    `json:"status" bson:"status"`
	Messages     []TicketMessage `json:"messages" bson:"messages"`
	CreatedAt    time.Time       `json:"createdAt" bson:"created_at"`
	LastUpdated  time.Time       `json:"lastUpdated" bson:"last_updated"`
	Version      int             `json:"-" bson:"version"`
}

// TicketFilter narrows ticket lists. Empty fields match everything.
type TicketFilter struct {
	AccountID string
	Status    TicketStatus
}
