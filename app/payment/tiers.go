package payment

import (
	"fmt"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/models"
)

// Tier is one purchasable credit bundle. Amount is in pence.
type Tier struct {
	Product  models.Product `json:"product"`
	Quantity int            `json:"quantity"`
	Amount   int64          `json:"amount"`
}

var Tiers = []Tier{
	{models.ProductMOT, 5, 299},
	{models.ProductMOT, 10, 499},
	{models.ProductMOT, 25, 999},
	{models.ProductVDI, 1, 999},
	{models.ProductVDI, 3, 2499},
	{models.ProductVDI, 5, 3999},
	{models.ProductValuation, 1, 499},
	{models.ProductValuation, 3, 1199},
	{models.ProductValuation, 5, 1799},
}

// FindTier returns the bundle for (product, quantity) or apperr.ErrInvalidPackage.
func FindTier(product models.Product, quantity int) (Tier, error) {
	for _, t := range Tiers {
		if t.Product == product && t.Quantity == quantity {
			return t, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: %s x%d", apperr.ErrInvalidPackage, product, quantity)
}

func (t Tier) Name() string {
	if t.Quantity == 1 {
		if t.Product == models.ProductValuation {
			return "1 Valuation check"
		}
		return fmt.Sprintf("1 %s check", t.Product)
	}
	if t.Product == models.ProductValuation {
		return fmt.Sprintf("%d Valuation checks", t.Quantity)
	}
	return fmt.Sprintf("%d %s checks", t.Quantity, t.Product)
}
