package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"kwatch/internal/models"
	"kwatch/internal/providers"
	"kwatch/internal/storage"
)

// AllocationServiceInterface splits confirmed payments across the fund
// categories and records the resulting immutable ledger entries.
type AllocationServiceInterface interface {
	// Allocate splits the payment and persists the entries atomically.
	// Calling it again for the same payment returns the stored entries.
	Allocate(ctx context.Context, paymentID string, amountCents int64) ([]*models.AllocationEntry, error)
	GetAllocations(ctx context.Context, paymentID string) ([]*models.AllocationEntry, error)
}

type AllocationService struct {
	store   storage.Store
	logger  providers.Logger
	metrics providers.MetricsProviderInterface
	now     func() time.Time
}

func NewAllocationService(store storage.Store, logger providers.Logger,
	metrics providers.MetricsProviderInterface) AllocationServiceInterface {
	return &AllocationService{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Split divides an amount of cents across the fund categories using
// largest-remainder rounding. Each category first receives the floor of its
// share; the cents left over go one each to the categories with the largest
// fractional remainders, ties broken by the fixed category order. The
// returned amounts always sum exactly to amountCents.
func Split(amountCents int64) map[models.FundCategory]int64 {
	out := make(map[models.FundCategory]int64, len(models.FundCategories))
	type frac struct {
		category  models.FundCategory
		remainder int64
		priority  int
	}
	fracs := make([]frac, 0, len(models.FundCategories))

	var distributed int64
	for i, cat := range models.FundCategories {
		bp := models.FundShareBP[cat]
		out[cat] = amountCents * bp / 10000
		distributed += out[cat]
		fracs = append(fracs, frac{cat, amountCents * bp % 10000, i})
	}

	sort.SliceStable(fracs, func(i, j int) bool {
		if fracs[i].remainder != fracs[j].remainder {
			return fracs[i].remainder > fracs[j].remainder
		}
		return fracs[i].priority < fracs[j].priority
	})

	for i := int64(0); i < amountCents-distributed; i++ {
		out[fracs[i].category]++
	}
	return out
}

func (as *AllocationService) Allocate(ctx context.Context, paymentID string, amountCents int64) ([]*models.AllocationEntry, error) {
	if amountCents < 1 {
		return nil, fmt.Errorf("payment amount must be at least 1 cent, got %d", amountCents)
	}

	now := as.now().UTC()
	shares := Split(amountCents)

	entries := make([]*models.AllocationEntry, 0, len(models.FundCategories))
	var total int64
	for _, cat := range models.FundCategories {
		entries = append(entries, &models.AllocationEntry{
			ID:          models.NewID("alc"),
			PaymentID:   paymentID,
			Category:    cat,
			AmountCents: shares[cat],
			CreatedAt:   now,
		})
		total += shares[cat]
	}
	if total != amountCents {
		// Split guarantees conservation; reaching this means the ledger
		// would silently create or destroy money, so refuse loudly.
		as.metrics.IncAllocationMismatches()
		return nil, fmt.Errorf("allocation for payment %s sums to %d cents, expected %d",
			paymentID, total, amountCents)
	}

	payment := &models.Payment{
		ID:          paymentID,
		AmountCents: amountCents,
		Allocated:   true,
		CreatedAt:   now,
		AllocatedAt: &now,
	}
	err := as.store.AllocatePayment(ctx, payment, entries)
	if errors.Is(err, storage.ErrAlreadyAllocated) {
		// Duplicate confirmation event. The first allocation stands.
		as.logger.Infof(providers.TypeLedger, "Payment %s already allocated, returning existing entries", paymentID)
		return as.store.ListAllocations(ctx, paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("persisting allocation: %w", err)
	}

	as.metrics.IncAllocationsTotal()
	as.logger.Infof(providers.TypeLedger, "Allocated payment %s: %d cents across %d categories",
		paymentID, amountCents, len(entries))
	return entries, nil
}

func (as *AllocationService) GetAllocations(ctx context.Context, paymentID string) ([]*models.AllocationEntry, error) {
	return as.store.ListAllocations(ctx, paymentID)
}
