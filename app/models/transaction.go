package models

import "time"

// FreeGrantRef marks transactions created by administrative grants. Unlike real
// payment references it may repeat.
const FreeGrantRef = "FREE_GRANT"

type Transaction struct {
	ID         string    `json:"id" bson:"_id"`
	AccountID  string    `json:"accountId" bson:"account_id"`
	PaymentRef string    `json:"paymentRef" bson:"payment_ref"`
	Credits    int       `json:"credits" bson:"credits"`
	Product    Product   `json:"product" bson:"product"`
	AmountPaid int64     `json:"amountPaid" bson:"amount_paid"`
	Currency   string    `json:"currency" bson:"currency"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
}

func (t Transaction) IsFreeGrant() bool {
	return t.PaymentRef == FreeGrantRef
}
