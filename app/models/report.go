package models

import (
	"errors"
	"time"
)

// Report is the typed result of one lookup. Exactly one of MOT, VDI or Valuation is set,
// matching Product.
type Report struct {
	Product      Product          `json:"product" bson:"product"`
	Registration string           `json:"registration" bson:"registration"`
	MOT          *MOTReport       `json:"mot,omitempty" bson:"mot,omitempty"`
	VDI          *VDIReport       `json:"vdi,omitempty" bson:"vdi,omitempty"`
	Valuation    *ValuationReport `json:"valuation,omitempty" bson:"valuation,omitempty"`
}

// Validate checks the union tag against the populated member.
func (r Report) Validate() error {
	set := 0
	if r.MOT != nil {
		set++
	}
	if r.VDI != nil {
		set++
	}
	if r.Valuation != nil {
		set++
	}
	if set != 1 {
		return errors.New("report must carry exactly one payload")
	}
	switch r.Product {
	case ProductMOT:
		if r.MOT == nil {
			return errors.New("MOT report missing MOT payload")
		}
	case ProductVDI:
		if r.VDI == nil {
			return errors.New("VDI report missing VDI payload")
		}
	case ProductValuation:
		if r.Valuation == nil {
			return errors.New("valuation report missing valuation payload")
		}
	default:
		return errors.New("report has unknown product")
	}
	return nil
}

type MOTReport struct {
	Registration  string    `json:"registration" bson:"registration"`
	Make          string    `json:"make" bson:"make"`
	Model         string    `json:"model" bson:"model"`
	PrimaryColour string    `json:"primaryColour" bson:"primary_colour"`
	FuelType      string    `json:"fuelType" bson:"fuel_type"`
	FirstUsedDate string    `json:"firstUsedDate,omitempty" bson:"first_used_date,omitempty"`
	Tests         []MOTTest `json:"motTests" bson:"tests"`
}

type MOTTest struct {
	CompletedDate string      `json:"completedDate" bson:"completed_date"`
	Result        string      `json:"testResult" bson:"result"` // PASSED or FAILED
	ExpiryDate    string      `json:"expiryDate,omitempty" bson:"expiry_date,omitempty"`
	OdometerValue int         `json:"odometerValue" bson:"odometer_value"`
	OdometerUnit  string      `json:"odometerUnit" bson:"odometer_unit"`
	TestNumber    string      `json:"motTestNumber" bson:"test_number"`
	Defects       []MOTDefect `json:"defects,omitempty" bson:"defects,omitempty"`
}

type MOTDefect struct {
	Text      string `json:"text" bson:"text"`
	Type      string `json:"type" bson:"type"` // ADVISORY, MINOR, MAJOR, DANGEROUS, FAIL, PRS
	Dangerous bool   `json:"dangerous" bson:"dangerous"`
}

// VDIReport aggregates the vehicle data, MOT history and imagery calls.
type VDIReport struct {
	Vehicle    VDIData        `json:"vehicle" bson:"vehicle"`
	MOTHistory *MOTReport     `json:"motHistory,omitempty" bson:"mot_history,omitempty"`
	Images     []VehicleImage `json:"images" bson:"images"`
}

type VDIData struct {
	Registration       string `json:"registration" bson:"registration"`
	Make               string `json:"make" bson:"make"`
	Model              string `json:"model" bson:"model"`
	Colour             string `json:"colour" bson:"colour"`
	FuelType           string `json:"fuelType" bson:"fuel_type"`
	EngineCapacityCC   int    `json:"engineCapacityCc" bson:"engine_capacity_cc"`
	YearOfManufacture  int    `json:"yearOfManufacture" bson:"year_of_manufacture"`
	VINLast5           string `json:"vinLast5,omitempty" bson:"vin_last5,omitempty"`
	PreviousKeepers    int    `json:"previousKeepers" bson:"previous_keepers"`
	PlateChanges       int    `json:"plateChanges" bson:"plate_changes"`
	OutstandingFinance bool   `json:"outstandingFinance" bson:"outstanding_finance"`
	Stolen             bool   `json:"stolen" bson:"stolen"`
	WriteOff           bool   `json:"writeOff" bson:"write_off"`
	Scrapped           bool   `json:"scrapped" bson:"scrapped"`
}

type VehicleImage struct {
	URL   string `json:"url" bson:"url"`
	Angle string `json:"angle,omitempty" bson:"angle,omitempty"`
}

// ValuationReport amounts are in pence.
type ValuationReport struct {
	Registration string    `json:"registration" bson:"registration"`
	Mileage      int       `json:"mileage" bson:"mileage"`
	ValuedAt     time.Time `json:"valuedAt" bson:"valued_at"`
	Retail       int64     `json:"retail" bson:"retail"`
	PrivateSale  int64     `json:"privateSale" bson:"private_sale"`
	TradeIn      int64     `json:"tradeIn" bson:"trade_in"`
	Auction      int64     `json:"auction" bson:"auction"`
}
