// internal/store/memory_test.go
package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idlabstudio/idlab-backend/internal/models"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	payment := &models.Payment{FullName: "Jane Doe", Email: "jane@example.com", Status: models.PaymentStatusPending}
	require.NoError(t, s.Create(ctx, payment))
	assert.NotEqual(t, uuid.Nil, payment.ID)
	assert.False(t, payment.CreatedAt.IsZero())

	var got models.Payment
	require.NoError(t, s.Get(ctx, &got, payment.ID))
	assert.Equal(t, "Jane Doe", got.FullName)
	assert.Equal(t, models.PaymentStatusPending, got.Status)

	// Mutating the caller's copy must not leak into the store.
	got.FullName = "changed"
	var again models.Payment
	require.NoError(t, s.Get(ctx, &again, payment.ID))
	assert.Equal(t, "Jane Doe", again.FullName)

	err := s.Get(ctx, &models.Payment{}, uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestMemoryStoreConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	payment := &models.Payment{Email: "a@example.com", Status: models.PaymentStatusPending}
	require.NoError(t, s.Create(ctx, payment))

	now := time.Now().UTC()
	err := s.Update(ctx, &models.Payment{}, payment.ID,
		Fields{"status": models.PaymentStatusPending},
		Fields{"status": models.PaymentStatusApproved, "approved_at": now, "approved_by": "admin"})
	require.NoError(t, err)

	var got models.Payment
	require.NoError(t, s.Get(ctx, &got, payment.ID))
	assert.Equal(t, models.PaymentStatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(now))

	err = s.Update(ctx, &models.Payment{}, payment.ID,
		Fields{"status": "pending"},
		Fields{"status": models.PaymentStatusRejected})
	assert.True(t, IsConditionFailed(err))

	err = s.Update(ctx, &models.Payment{}, uuid.New(), nil, Fields{"email_sent": true})
	assert.True(t, IsNotFound(err))
}

func TestMemoryStoreNullConditionClaimsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	payment := &models.Payment{Email: "a@example.com", Status: models.PaymentStatusApproved}
	require.NoError(t, s.Create(ctx, payment))

	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, &models.Payment{}, payment.ID,
				Fields{"email_attempted_at": nil},
				Fields{"email_attempted_at": time.Now().UTC()})
			if err == nil {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claimed)
}

func TestMemoryStoreFindFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []models.RequestStatus{
		models.RequestStatusPending,
		models.RequestStatusApproved,
		models.RequestStatusPending,
		models.RequestStatusPending,
	} {
		req := &models.LicenseRequest{FullName: "r", Email: "r@example.com", Status: status}
		req.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Create(ctx, req))
	}

	var pending []models.LicenseRequest
	require.NoError(t, s.Find(ctx, &pending, Query{
		Filters: Fields{"status": models.RequestStatusPending},
		OrderBy: "created_at",
		Desc:    true,
	}))
	require.Len(t, pending, 3)
	assert.True(t, pending[0].CreatedAt.Equal(base.Add(3*time.Hour)))
	assert.True(t, pending[2].CreatedAt.Equal(base))

	var page []models.LicenseRequest
	require.NoError(t, s.Find(ctx, &page, Query{OrderBy: "created_at", Offset: 1, Limit: 2}))
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.Equal(base.Add(time.Hour)))

	total, err := s.Count(ctx, &models.LicenseRequest{}, Fields{"status": "pending"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestMemoryStoreFirstByReference(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	paymentID := uuid.New()
	license := &models.License{Key: "ABCD-EFGH-IJKL-MNOP", UserEmail: "a@example.com", PaymentID: &paymentID, IsActive: true}
	require.NoError(t, s.Create(ctx, license))

	var found models.License
	require.NoError(t, s.First(ctx, &found, Fields{"payment_id": paymentID}))
	assert.Equal(t, license.ID, found.ID)

	err := s.First(ctx, &models.License{}, Fields{"payment_id": uuid.New()})
	assert.True(t, IsNotFound(err))
}

func TestMemoryStoreTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	req := &models.LicenseRequest{Email: "a@example.com", Status: models.RequestStatusPending}
	require.NoError(t, s.Create(ctx, req))

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx Store) error {
		if err := tx.Create(ctx, &models.Payment{Email: "a@example.com"}); err != nil {
			return err
		}
		if err := tx.Update(ctx, &models.LicenseRequest{}, req.ID, nil, Fields{"status": models.RequestStatusApproved}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var got models.LicenseRequest
	require.NoError(t, s.Get(ctx, &got, req.ID))
	assert.Equal(t, models.RequestStatusPending, got.Status)

	total, err := s.Count(ctx, &models.Payment{}, nil)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMemoryStoreTransactionCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Transaction(ctx, func(tx Store) error {
		return tx.Create(ctx, &models.Payment{Email: "a@example.com"})
	})
	require.NoError(t, err)

	total, err := s.Count(ctx, &models.Payment{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

// Pins the documented isolation of the memory store: uncommitted writes are
// visible outside the transaction and a rollback discards them.
func TestMemoryStoreTransactionWritesVisibleBeforeCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	payment := &models.Payment{Email: "a@example.com", Status: models.PaymentStatusPending}
	require.NoError(t, s.Create(ctx, payment))

	err := s.Transaction(ctx, func(tx Store) error {
		require.NoError(t, tx.Update(ctx, &models.Payment{}, payment.ID, nil,
			Fields{"status": models.PaymentStatusApproved}))

		var outside models.Payment
		require.NoError(t, s.Get(ctx, &outside, payment.ID))
		assert.Equal(t, models.PaymentStatusApproved, outside.Status)
		return errors.New("abort")
	})
	require.Error(t, err)

	var got models.Payment
	require.NoError(t, s.Get(ctx, &got, payment.ID))
	assert.Equal(t, models.PaymentStatusPending, got.Status)
}
