package models

// Request bodies accepted by the HTTP API.

type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LookupRequest struct {
	Registration string `json:"registration" binding:"required"`
	Mileage      int    `json:"mileage"`
}

type CheckoutRequest struct {
	Product  string `json:"product" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

type GrantRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	Product   string `json:"product" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type NewTicketRequest struct {
	ContactName  string     `json:"contactName"`
	ContactEmail string     `json:"contactEmail"`
	Subject      string     `json:"subject" binding:"required"`
	Department   Department `json:"department"`
	Priority     Priority   `json:"priority"`
	Message      string     `json:"message" binding:"required"`
}

type ReplyRequest struct {
	Message string `json:"message" binding:"required"`
}

type StatusRequest struct {
	Status TicketStatus `json:"status" binding:"required"`
}
