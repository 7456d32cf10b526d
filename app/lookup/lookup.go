// Package lookup runs MOT, VDI and valuation checks: entitlement first, then the provider,
// then the record and debit together.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/entitlement"
	"example/regcheck-api/app/metrics"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/provider"
	"example/regcheck-api/app/store"
)

const maxMileage = 1_000_000

type Entitlements interface {
	Check(ctx context.Context, r entitlement.Requester, product models.Product) (entitlement.Grant, error)
	Release(g entitlement.Grant)
	Commit(ctx context.Context, g entitlement.Grant, record *models.SearchRecord) error
}

type Orchestrator struct {
	entitlements Entitlements
	provider     provider.Provider
	searches     store.Searches
	now          func() time.Time
}

func NewOrchestrator(entitlements Entitlements, p provider.Provider, searches store.Searches) *Orchestrator {
	return &Orchestrator{
		entitlements: entitlements,
		provider:     p,
		searches:     searches,
		now:          time.Now,
	}
}

func (o *Orchestrator) MOTCheck(ctx context.Context, r entitlement.Requester, rawReg string) (models.Report, error) {
	return o.run(ctx, r, models.ProductMOT, rawReg, func(ctx context.Context, reg string) (models.Report, error) {
		mot, err := o.provider.MOTHistory(ctx, reg)
		if err != nil {
			return models.Report{}, err
		}
		return models.Report{MOT: mot}, nil
	})
}

// VDICheck composes the vehicle data, MOT history and imagery into one report. Imagery is
// optional: when it fails the report carries no images.
func (o *Orchestrator) VDICheck(ctx context.Context, r entitlement.Requester, rawReg string) (models.Report, error) {
	return o.run(ctx, r, models.ProductVDI, rawReg, func(ctx context.Context, reg string) (models.Report, error) {
		var (
			vehicle *models.VDIData
			history *models.MOTReport
			images  []models.VehicleImage
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			vehicle, err = o.provider.VehicleData(gctx, reg)
			return err
		})
		g.Go(func() error {
			var err error
			history, err = o.provider.MOTHistory(gctx, reg)
			if errors.Is(err, apperr.ErrVehicleNotFound) {
				// vehicles under three years old have no MOT history yet
				history, err = nil, nil
			}
			return err
		})
		g.Go(func() error {
			imgs, err := o.provider.Images(gctx, reg)
			if err != nil {
				log.Warn().Err(err).Str("registration", reg).Msg("Vehicle imagery unavailable")
				return nil
			}
			images = imgs
			return nil
		})
		if err := g.Wait(); err != nil {
			return models.Report{}, err
		}

		if images == nil {
			images = []models.VehicleImage{}
		}
		return models.Report{VDI: &models.VDIReport{Vehicle: *vehicle, MOTHistory: history, Images: images}}, nil
	})
}

func (o *Orchestrator) ValuationCheck(ctx context.Context, r entitlement.Requester, rawReg string, mileage int) (models.Report, error) {
	if mileage < 0 || mileage > maxMileage {
		return models.Report{}, apperr.Invalid("mileage out of range")
	}
	return o.run(ctx, r, models.ProductValuation, rawReg, func(ctx context.Context, reg string) (models.Report, error) {
		v, err := o.provider.Valuation(ctx, reg, mileage)
		if err != nil {
			return models.Report{}, err
		}
		return models.Report{Valuation: v}, nil
	})
}

// SearchHistory lists the account's lookups, newest first.
func (o *Orchestrator) SearchHistory(ctx context.Context, accountID string, page models.Page) ([]models.SearchRecord, error) {
	if accountID == "" {
		return nil, apperr.ErrNotAuthenticated
	}
	return o.searches.ListSearches(ctx, accountID, page)
}

type fetchFunc func(ctx context.Context, reg string) (models.Report, error)

func (o *Orchestrator) run(ctx context.Context, r entitlement.Requester, product models.Product, rawReg string, fetch fetchFunc) (models.Report, error) {
	reg, err := NormalizeRegistration(rawReg)
	if err != nil {
		metrics.RecordLookup(string(product), "invalid")
		return models.Report{}, err
	}

	grant, err := o.entitlements.Check(ctx, r, product)
	if err != nil {
		metrics.RecordLookup(string(product), outcome(err))
		return models.Report{}, err
	}

	report, err := fetch(ctx, reg)
	if err != nil {
		o.entitlements.Release(grant)
		err = upstreamError(product, reg, err)
		metrics.RecordLookup(string(product), outcome(err))
		return models.Report{}, err
	}
	report.Product = product
	report.Registration = reg
	if err := report.Validate(); err != nil {
		o.entitlements.Release(grant)
		metrics.RecordLookup(string(product), "upstream_error")
		return models.Report{}, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}

	record := &models.SearchRecord{
		ID:           uuid.NewString(),
		AccountID:    r.AccountID,
		Registration: reg,
		Product:      product,
		Report:       report,
		CreatedAt:    o.now().UTC(),
	}
	if err := o.entitlements.Commit(ctx, grant, record); err != nil {
		metrics.RecordLookup(string(product), outcome(err))
		return models.Report{}, err
	}

	metrics.RecordLookup(string(product), "ok")
	return report, nil
}

func upstreamError(product models.Product, reg string, err error) error {
	if errors.Is(err, apperr.ErrVehicleNotFound) {
		return err
	}
	log.Error().Err(err).Str("product", string(product)).Str("registration", reg).Msg("Provider call failed")
	return fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNoEntitlement):
		return "no_entitlement"
	case errors.Is(err, apperr.ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, apperr.ErrVehicleNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		return "upstream_error"
	default:
		return "error"
	}
}
