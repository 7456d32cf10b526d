// Package models defines the accounts, reports, transactions and tickets shared by the API.
package models

import (
	"fmt"
	"strings"
)

// Product is the category of vehicle-data lookup a credit pays for.
type Product string

const (
	ProductMOT       Product = "MOT"
	ProductVDI       Product = "VDI"
	ProductValuation Product = "VALUATION"
)

// FreeMOTLookups is the number of MOT lookups an account or anonymous client gets without paying.
const FreeMOTLookups = 3

// Products lists every product in display order.
var Products = []Product{ProductMOT, ProductVDI, ProductValuation}

// ParseProduct accepts the canonical names plus the "hpi" alias used by the frontend.
func ParseProduct(s string) (Product, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MOT":
		return ProductMOT, nil
	case "VDI", "HPI":
		return ProductVDI, nil
	case "VALUATION":
		return ProductValuation, nil
	default:
		return "", fmt.Errorf("unknown product %q", s)
	}
}

func (p Product) Valid() bool {
	switch p {
	case ProductMOT, ProductVDI, ProductValuation:
		return true
	}
	return false
}

// HasFreeTier reports whether lookups of this product can be taken from the free allowance.
func (p Product) HasFreeTier() bool {
	return p == ProductMOT
}
