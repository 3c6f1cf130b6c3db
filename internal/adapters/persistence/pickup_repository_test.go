package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapco/scrapco-go/internal/adapters/persistence"
	"github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/infrastructure/database"
)

func newRepo(t *testing.T) *persistence.PickupRepositoryGORM {
	t.Helper()
	db, err := database.NewTestConnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return persistence.NewPickupRepository(db)
}

func seedPickup(t *testing.T, repo *persistence.PickupRepositoryGORM, status pickup.Status) *pickup.Pickup {
	t.Helper()
	p := &pickup.Pickup{
		ID:         uuid.NewString(),
		CustomerID: "customer-1",
		Address:    "12 Alloy Street",
		Latitude:   12.97,
		Longitude:  77.59,
		TimeSlot:   "2026-08-26T10:00",
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	items := []pickup.Item{
		{ScrapTypeID: "copper", ScrapTypeName: "Copper", EstimatedQuantity: "5 kg"},
		{ScrapTypeID: "iron", ScrapTypeName: "Iron", EstimatedQuantity: "20 kg"},
	}
	require.NoError(t, repo.Create(context.Background(), p, items))
	return p
}

func TestCreateAndFind(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	p := seedPickup(t, repo, pickup.StatusRequested)

	found, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
	assert.Equal(t, pickup.StatusRequested, found.Status)
	assert.Nil(t, found.AssignedVendorRef)

	items, err := repo.ListItems(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "copper", items[0].ScrapTypeID)
}

func TestFindByID_NotFound(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFindOwnedByID_WrongOwnerLooksLikeMissing(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	p := seedPickup(t, repo, pickup.StatusRequested)

	_, err := repo.FindOwnedByID(ctx, p.ID, "someone-else")
	assert.Error(t, err)

	found, err := repo.FindOwnedByID(ctx, p.ID, "customer-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
}

func TestBeginFinding_AllowedStatuses(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	for _, status := range []pickup.Status{
		pickup.StatusRequested,
		pickup.StatusNoVendorAvailable,
		pickup.StatusFindingVendor,
	} {
		p := seedPickup(t, repo, status)
		row, modified, err := repo.BeginFinding(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, modified, "status %s should allow begin finding", status)
		assert.Equal(t, pickup.StatusFindingVendor, row.Status)
	}

	assigned := seedPickup(t, repo, pickup.StatusAssigned)
	_, modified, err := repo.BeginFinding(ctx, assigned.ID)
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestReserveOffer_ExclusiveHold(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	expiresAt := time.Now().UTC().Add(2 * time.Minute)

	p := seedPickup(t, repo, pickup.StatusFindingVendor)

	row, modified, err := repo.ReserveOffer(ctx, p.ID, "vendor-a", expiresAt)
	require.NoError(t, err)
	require.True(t, modified)
	require.NotNil(t, row.AssignedVendorRef)
	assert.Equal(t, "vendor-a", *row.AssignedVendorRef)
	require.NotNil(t, row.AssignmentExpiresAt)

	// Second vendor cannot steal the hold
	_, modified, err = repo.ReserveOffer(ctx, p.ID, "vendor-b", expiresAt)
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestConfirmAssignment_StrictExpiry(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, modified, err := repo.ReserveOffer(ctx, p.ID, "vendor-a", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, modified)

	// Accept after the deadline loses
	_, modified, err = repo.ConfirmAssignment(ctx, p.ID, "vendor-a", now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, modified)

	// Accept in time by the holder wins and clears the deadline
	row, modified, err := repo.ConfirmAssignment(ctx, p.ID, "vendor-a", now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, modified)
	assert.Equal(t, pickup.StatusAssigned, row.Status)
	assert.Nil(t, row.AssignmentExpiresAt)
	require.NotNil(t, row.AssignedVendorRef)
	assert.Equal(t, "vendor-a", *row.AssignedVendorRef)
}

func TestConfirmAssignment_WrongVendorLoses(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err := repo.ReserveOffer(ctx, p.ID, "vendor-a", now.Add(2*time.Minute))
	require.NoError(t, err)

	_, modified, err := repo.ConfirmAssignment(ctx, p.ID, "vendor-b", now)
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestClearExpiredOffer_VendorMatch(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err := repo.ReserveOffer(ctx, p.ID, "vendor-a", now.Add(-time.Minute))
	require.NoError(t, err)

	// A timer that belonged to a different vendor must not clobber the hold
	_, modified, err := repo.ClearExpiredOffer(ctx, p.ID, "vendor-b", now)
	require.NoError(t, err)
	assert.False(t, modified)

	row, modified, err := repo.ClearExpiredOffer(ctx, p.ID, "vendor-a", now)
	require.NoError(t, err)
	require.True(t, modified)
	assert.Nil(t, row.AssignedVendorRef)
	assert.Nil(t, row.AssignmentExpiresAt)
	assert.Equal(t, pickup.StatusFindingVendor, row.Status)
}

func TestClearExpiredOffer_AnyVendorWildcard(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err := repo.ReserveOffer(ctx, p.ID, "vendor-a", now.Add(-time.Second))
	require.NoError(t, err)

	row, modified, err := repo.ClearExpiredOffer(ctx, p.ID, pickup.AnyVendor, now)
	require.NoError(t, err)
	require.True(t, modified)
	assert.Nil(t, row.AssignedVendorRef)
}

func TestClearExpiredOffer_UnexpiredUntouched(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err := repo.ReserveOffer(ctx, p.ID, "vendor-a", now.Add(time.Minute))
	require.NoError(t, err)

	_, modified, err := repo.ClearExpiredOffer(ctx, p.ID, pickup.AnyVendor, now)
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestRejectOffer_ClearsHoldKeepsFinding(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err := repo.ReserveOffer(ctx, p.ID, "vendor-a", now.Add(2*time.Minute))
	require.NoError(t, err)

	// Only the holder can reject
	_, modified, err := repo.RejectOffer(ctx, p.ID, "vendor-b")
	require.NoError(t, err)
	assert.False(t, modified)

	row, modified, err := repo.RejectOffer(ctx, p.ID, "vendor-a")
	require.NoError(t, err)
	require.True(t, modified)
	assert.Equal(t, pickup.StatusFindingVendor, row.Status)
	assert.Nil(t, row.AssignedVendorRef)
}

func TestCancel_OwnershipAndTerminalGuard(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPickup(t, repo, pickup.StatusFindingVendor)

	// Wrong owner cannot cancel
	_, modified, err := repo.Cancel(ctx, p.ID, "someone-else", now)
	require.NoError(t, err)
	assert.False(t, modified)

	row, modified, err := repo.Cancel(ctx, p.ID, "customer-1", now)
	require.NoError(t, err)
	require.True(t, modified)
	assert.Equal(t, pickup.StatusCancelled, row.Status)
	require.NotNil(t, row.CancelledAt)
	assert.Nil(t, row.AssignedVendorRef)

	// Second cancel matches zero rows; idempotence is layered above
	_, modified, err = repo.Cancel(ctx, p.ID, "customer-1", now)
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestCancel_CompletedIsImmutable(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	p := seedPickup(t, repo, pickup.StatusCompleted)
	_, modified, err := repo.Cancel(ctx, p.ID, "customer-1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, modified)
}

func TestCompleteAndOnTheWay_RequireAssignment(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err := repo.ReserveOffer(ctx, p.ID, "vendor-a", now.Add(2*time.Minute))
	require.NoError(t, err)
	_, _, err = repo.ConfirmAssignment(ctx, p.ID, "vendor-a", now)
	require.NoError(t, err)

	// Wrong vendor cannot progress the pickup
	_, modified, err := repo.SetOnTheWay(ctx, p.ID, "vendor-b")
	require.NoError(t, err)
	assert.False(t, modified)

	row, modified, err := repo.SetOnTheWay(ctx, p.ID, "vendor-a")
	require.NoError(t, err)
	require.True(t, modified)
	assert.Equal(t, pickup.StatusOnTheWay, row.Status)

	row, modified, err = repo.Complete(ctx, p.ID, "vendor-a", now)
	require.NoError(t, err)
	require.True(t, modified)
	assert.Equal(t, pickup.StatusCompleted, row.Status)
	require.NotNil(t, row.CompletedAt)
}

func TestComplete_DirectlyFromAssigned(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err := repo.ReserveOffer(ctx, p.ID, "vendor-a", now.Add(2*time.Minute))
	require.NoError(t, err)
	_, _, err = repo.ConfirmAssignment(ctx, p.ID, "vendor-a", now)
	require.NoError(t, err)

	row, modified, err := repo.Complete(ctx, p.ID, "vendor-a", now)
	require.NoError(t, err)
	require.True(t, modified)
	assert.Equal(t, pickup.StatusCompleted, row.Status)
}

func TestRetry_ClearsStaleOffer(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err := repo.ReserveOffer(ctx, p.ID, "vendor-a", now.Add(-time.Minute))
	require.NoError(t, err)

	row, modified, err := repo.Retry(ctx, p.ID, "customer-1")
	require.NoError(t, err)
	require.True(t, modified)
	assert.Equal(t, pickup.StatusFindingVendor, row.Status)
	assert.Nil(t, row.AssignedVendorRef)
	assert.Nil(t, row.AssignmentExpiresAt)
}

func TestRetry_RejectedFromTerminalStatuses(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	for _, status := range []pickup.Status{
		pickup.StatusAssigned,
		pickup.StatusCompleted,
		pickup.StatusCancelled,
	} {
		p := seedPickup(t, repo, status)
		_, modified, err := repo.Retry(ctx, p.ID, "customer-1")
		require.NoError(t, err)
		assert.False(t, modified, "status %s must not allow retry", status)
	}
}

func TestSweepExpired_OnlyPastDeadlines(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err := repo.ReserveOffer(ctx, expired.ID, "vendor-a", now.Add(-time.Minute))
	require.NoError(t, err)

	live := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err = repo.ReserveOffer(ctx, live.ID, "vendor-b", now.Add(time.Minute))
	require.NoError(t, err)

	noOffer := seedPickup(t, repo, pickup.StatusFindingVendor)
	_ = noOffer

	rows, err := repo.SweepExpired(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, expired.ID, rows[0].ID)
}

func TestListStuckFinding_ReturnsOfferlessRows(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stuck := seedPickup(t, repo, pickup.StatusFindingVendor)
	requested := seedPickup(t, repo, pickup.StatusRequested)

	offered := seedPickup(t, repo, pickup.StatusFindingVendor)
	_, _, err := repo.ReserveOffer(ctx, offered.ID, "vendor-a", now.Add(time.Minute))
	require.NoError(t, err)

	terminal := seedPickup(t, repo, pickup.StatusCancelled)
	_ = terminal

	rows, err := repo.ListStuckFinding(ctx, 50)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	ids := []string{rows[0].ID, rows[1].ID}
	assert.Contains(t, ids, stuck.ID)
	assert.Contains(t, ids, requested.ID)
}
