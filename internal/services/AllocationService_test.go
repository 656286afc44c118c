package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kwatch/internal/models"
	"kwatch/internal/storage/sqlite"
	"kwatch/internal/testutil"
)

func TestSplitDivisibleAmount(t *testing.T) {
	shares := Split(1000)
	assert.Equal(t, int64(300), shares[models.FundBugHunterBounty])
	assert.Equal(t, int64(500), shares[models.FundOperations])
	assert.Equal(t, int64(200), shares[models.FundDevelopment])
}

func TestSplitWithRemainder(t *testing.T) {
	// 333 cents: floors are 99/166/66 and the 2 leftover cents go to the
	// categories with the largest fractional remainders.
	shares := Split(333)
	assert.Equal(t, int64(100), shares[models.FundBugHunterBounty])
	assert.Equal(t, int64(166), shares[models.FundOperations])
	assert.Equal(t, int64(67), shares[models.FundDevelopment])
}

func TestSplitOneCent(t *testing.T) {
	shares := Split(1)
	var total int64
	for _, v := range shares {
		total += v
	}
	assert.Equal(t, int64(1), total)
	// The single cent goes to the largest-remainder category, operations.
	assert.Equal(t, int64(1), shares[models.FundOperations])
}

func TestSplitConservesEveryAmount(t *testing.T) {
	for amount := int64(1); amount <= 10000; amount++ {
		shares := Split(amount)
		var total int64
		for _, v := range shares {
			require.GreaterOrEqual(t, v, int64(0))
			total += v
		}
		require.Equalf(t, amount, total, "split of %d cents does not conserve the amount", amount)
	}
}

func TestSplitDeterministic(t *testing.T) {
	first := Split(12345)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Split(12345))
	}
}

func newAllocationFixture(t *testing.T) (AllocationServiceInterface, *sqlite.SQLiteStore, *testutil.MockMetrics) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "kwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	metrics := testutil.NewMockMetrics()
	return NewAllocationService(store, &testutil.MockLogger{}, metrics), store, metrics
}

func TestAllocateCreatesClosedEntrySet(t *testing.T) {
	svc, store, metrics := newAllocationFixture(t)

	entries, err := svc.Allocate(context.Background(), "pay_1", 999)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var total int64
	for _, e := range entries {
		total += e.AmountCents
		assert.Equal(t, "pay_1", e.PaymentID)
	}
	assert.Equal(t, int64(999), total)
	assert.Equal(t, 1, metrics.AllocationsTotal)

	payment, err := store.GetPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.True(t, payment.Allocated)
	assert.NotNil(t, payment.AllocatedAt)
}

func TestAllocateIsIdempotent(t *testing.T) {
	svc, _, metrics := newAllocationFixture(t)

	first, err := svc.Allocate(context.Background(), "pay_1", 500)
	require.NoError(t, err)

	second, err := svc.Allocate(context.Background(), "pay_1", 500)
	require.NoError(t, err)
	require.Len(t, second, 3)

	for i := range first {
		assert.Equal(t, first[i].Category, second[i].Category)
		assert.Equal(t, first[i].AmountCents, second[i].AmountCents)
	}
	assert.Equal(t, 1, metrics.AllocationsTotal)
}

func TestAllocateRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newAllocationFixture(t)

	_, err := svc.Allocate(context.Background(), "pay_1", 0)
	assert.Error(t, err)
	_, err = svc.Allocate(context.Background(), "pay_1", -5)
	assert.Error(t, err)
}

func TestGetAllocationsOrderedByCategoryPriority(t *testing.T) {
	svc, _, _ := newAllocationFixture(t)

	_, err := svc.Allocate(context.Background(), "pay_1", 1000)
	require.NoError(t, err)

	entries, err := svc.GetAllocations(context.Background(), "pay_1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.FundBugHunterBounty, entries[0].Category)
	assert.Equal(t, models.FundOperations, entries[1].Category)
	assert.Equal(t, models.FundDevelopment, entries[2].Category)
}
