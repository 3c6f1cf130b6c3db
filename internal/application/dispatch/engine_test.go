package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapco/scrapco-go/internal/adapters/persistence"
	"github.com/scrapco/scrapco-go/internal/application/dispatch"
	domainpickup "github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
	"github.com/scrapco/scrapco-go/internal/domain/vendor"
	"github.com/scrapco/scrapco-go/internal/infrastructure/database"
)

// fakeSender records offers and fails on demand per vendor ref
type fakeSender struct {
	mu     sync.Mutex
	offers []string
	fail   map[string]error
}

func (f *fakeSender) SendOffer(_ context.Context, v *vendor.Backend, _ *domainpickup.Pickup, _ []domainpickup.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[v.VendorRef]; ok {
		return err
	}
	f.offers = append(f.offers, v.VendorRef)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.offers...)
}

type engineFixture struct {
	engine     *dispatch.Engine
	pickups    *persistence.PickupRepositoryGORM
	rejections *persistence.RejectionRepositoryGORM
	vendors    *persistence.VendorDirectoryGORM
	sender     *fakeSender
	clock      *shared.MockClock
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db, err := database.NewTestConnection()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	clock := shared.NewMockClock(time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))
	pickups := persistence.NewPickupRepository(db)
	rejections := persistence.NewRejectionRepository(db)
	vendors := persistence.NewVendorDirectory(db, clock)
	sender := &fakeSender{fail: map[string]error{}}

	// Long TTL keeps the armed wall-clock timers from firing mid-test; the
	// mock clock drives logical expiry instead.
	engine := dispatch.NewEngine(pickups, rejections, vendors, sender, clock, zerolog.Nop(), dispatch.Options{
		OfferTTL:   time.Hour,
		TimerSlack: time.Second,
	})
	t.Cleanup(engine.Shutdown)

	return &engineFixture{
		engine:     engine,
		pickups:    pickups,
		rejections: rejections,
		vendors:    vendors,
		sender:     sender,
		clock:      clock,
	}
}

func (f *engineFixture) addVendor(t *testing.T, ref string, lat, lon float64) {
	t.Helper()
	latV, lonV := lat, lon
	_, err := f.vendors.Upsert(context.Background(), &vendor.Backend{
		VendorRef: ref,
		OfferURL:  "https://" + ref + ".example.com",
		Latitude:  &latV,
		Longitude: &lonV,
	})
	require.NoError(t, err)
}

func (f *engineFixture) createPickup(t *testing.T) *domainpickup.Pickup {
	t.Helper()
	p := &domainpickup.Pickup{
		ID:         uuid.NewString(),
		CustomerID: "customer-1",
		Address:    "12 Alloy Street",
		Latitude:   0,
		Longitude:  0,
		TimeSlot:   "morning",
		Status:     domainpickup.StatusRequested,
		CreatedAt:  f.clock.Now(),
	}
	require.NoError(t, f.pickups.Create(context.Background(), p, []domainpickup.Item{
		{ScrapTypeID: "copper", ScrapTypeName: "Copper", EstimatedQuantity: "5 kg"},
	}))
	return p
}

func (f *engineFixture) status(t *testing.T, id string) *domainpickup.Pickup {
	t.Helper()
	row, err := f.pickups.FindByID(context.Background(), id)
	require.NoError(t, err)
	return row
}

func TestDispatch_OffersNearestVendorFirst(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "near", 0.1, 0.1)
	f.addVendor(t, "far", 5, 5)
	p := f.createPickup(t)

	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	assert.Equal(t, []string{"near"}, f.sender.sent())

	row := f.status(t, p.ID)
	assert.Equal(t, domainpickup.StatusFindingVendor, row.Status)
	require.NotNil(t, row.AssignedVendorRef)
	assert.Equal(t, "near", *row.AssignedVendorRef)
	require.NotNil(t, row.AssignmentExpiresAt)
	assert.WithinDuration(t, f.clock.Now().Add(time.Hour), *row.AssignmentExpiresAt, time.Second)
}

func TestDispatch_NoVendorsRegistered(t *testing.T) {
	f := newEngineFixture(t)
	p := f.createPickup(t)

	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	assert.Equal(t, domainpickup.StatusNoVendorAvailable, f.status(t, p.ID).Status)
	assert.Empty(t, f.sender.sent())
}

func TestDispatch_SkipsFailingSender(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "near", 0.1, 0.1)
	f.addVendor(t, "far", 5, 5)
	p := f.createPickup(t)

	f.sender.fail["near"] = shared.NewUpstreamError("connection refused")

	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	assert.Equal(t, []string{"far"}, f.sender.sent())
	row := f.status(t, p.ID)
	require.NotNil(t, row.AssignedVendorRef)
	assert.Equal(t, "far", *row.AssignedVendorRef)
}

func TestDispatch_AllSendsFailGivesUp(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "a", 0.1, 0.1)
	f.addVendor(t, "b", 0.2, 0.2)
	p := f.createPickup(t)

	f.sender.fail["a"] = shared.NewUpstreamError("down")
	f.sender.fail["b"] = shared.NewUpstreamError("down")

	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	row := f.status(t, p.ID)
	assert.Equal(t, domainpickup.StatusNoVendorAvailable, row.Status)
	assert.Nil(t, row.AssignedVendorRef)
}

func TestDispatch_ActiveOfferIsLeftAlone(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "a", 0.1, 0.1)
	p := f.createPickup(t)

	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	// The second call must not double-offer
	assert.Equal(t, []string{"a"}, f.sender.sent())
}

func TestOnAccept_AssignsPickup(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "a", 0.1, 0.1)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	row, err := f.engine.OnAccept(context.Background(), p.ID, "a")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, domainpickup.StatusAssigned, row.Status)
	assert.Nil(t, row.AssignmentExpiresAt)
}

func TestOnAccept_LateAcceptLosesRace(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "a", 0.1, 0.1)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	f.clock.Advance(2 * time.Hour)

	row, err := f.engine.OnAccept(context.Background(), p.ID, "a")
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Equal(t, domainpickup.StatusFindingVendor, f.status(t, p.ID).Status)
}

func TestOnAccept_WrongVendorLosesRace(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "a", 0.1, 0.1)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	row, err := f.engine.OnAccept(context.Background(), p.ID, "impostor")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestOnAccept_AfterCancelLosesRace(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "a", 0.1, 0.1)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	_, modified, err := f.pickups.Cancel(context.Background(), p.ID, "customer-1", f.clock.Now())
	require.NoError(t, err)
	require.True(t, modified)
	f.engine.DiscardSession(p.ID)

	row, err := f.engine.OnAccept(context.Background(), p.ID, "a")
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.Equal(t, domainpickup.StatusCancelled, f.status(t, p.ID).Status)
}

func TestOnReject_AdvancesToNextVendor(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "near", 0.1, 0.1)
	f.addVendor(t, "far", 5, 5)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	row, err := f.engine.OnReject(context.Background(), p.ID, "near")
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, []string{"near", "far"}, f.sender.sent())

	current := f.status(t, p.ID)
	require.NotNil(t, current.AssignedVendorRef)
	assert.Equal(t, "far", *current.AssignedVendorRef)

	// Rejection is durable
	refs, err := f.rejections.List(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, refs)
}

func TestOnReject_LastVendorGivesUp(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "only", 0.1, 0.1)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	_, err := f.engine.OnReject(context.Background(), p.ID, "only")
	require.NoError(t, err)

	assert.Equal(t, domainpickup.StatusNoVendorAvailable, f.status(t, p.ID).Status)
}

func TestOnReject_WithoutSessionRebuildsFromStore(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "near", 0.1, 0.1)
	f.addVendor(t, "far", 5, 5)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	// Simulate a restart that lost the in-memory session
	f.engine.DiscardSession(p.ID)

	row, err := f.engine.OnReject(context.Background(), p.ID, "near")
	require.NoError(t, err)
	require.NotNil(t, row)

	current := f.status(t, p.ID)
	require.NotNil(t, current.AssignedVendorRef)
	assert.Equal(t, "far", *current.AssignedVendorRef)
}

func TestOnReject_LateRejectStillRecorded(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "near", 0.1, 0.1)
	f.addVendor(t, "far", 5, 5)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	// The offer moved on to another vendor before the reject arrived
	_, err := f.engine.OnReject(context.Background(), p.ID, "near")
	require.NoError(t, err)

	row, err := f.engine.OnReject(context.Background(), p.ID, "near")
	require.NoError(t, err)
	assert.Nil(t, row)

	refs, err := f.rejections.List(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Contains(t, refs, "near")
}

func TestOnTimeout_AdvancesToNextVendor(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "near", 0.1, 0.1)
	f.addVendor(t, "far", 5, 5)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	f.clock.Advance(2 * time.Hour)

	require.NoError(t, f.engine.OnTimeout(context.Background(), p.ID, "near"))

	assert.Equal(t, []string{"near", "far"}, f.sender.sent())
	current := f.status(t, p.ID)
	require.NotNil(t, current.AssignedVendorRef)
	assert.Equal(t, "far", *current.AssignedVendorRef)
}

func TestOnTimeout_UnexpiredOfferUntouched(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "near", 0.1, 0.1)
	f.addVendor(t, "far", 5, 5)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	// Deadline still ahead: a stray timer fire must be a no-op
	require.NoError(t, f.engine.OnTimeout(context.Background(), p.ID, "near"))

	assert.Equal(t, []string{"near"}, f.sender.sent())
	current := f.status(t, p.ID)
	require.NotNil(t, current.AssignedVendorRef)
	assert.Equal(t, "near", *current.AssignedVendorRef)
}

func TestOnTimeout_ExhaustionGivesUp(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "only", 0.1, 0.1)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.engine.OnTimeout(context.Background(), p.ID, "only"))

	assert.Equal(t, domainpickup.StatusNoVendorAvailable, f.status(t, p.ID).Status)
}

func TestOnTimeout_WithoutSessionSkipsTimedOutVendor(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "near", 0.1, 0.1)
	f.addVendor(t, "far", 5, 5)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	f.engine.DiscardSession(p.ID)
	f.clock.Advance(2 * time.Hour)

	require.NoError(t, f.engine.OnTimeout(context.Background(), p.ID, "near"))

	current := f.status(t, p.ID)
	require.NotNil(t, current.AssignedVendorRef)
	assert.Equal(t, "far", *current.AssignedVendorRef)
}

func TestDispatch_ExcludesPersistedRejections(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "near", 0.1, 0.1)
	f.addVendor(t, "far", 5, 5)
	p := f.createPickup(t)

	require.NoError(t, f.rejections.Record(context.Background(), p.ID, "near", f.clock.Now()))

	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	assert.Equal(t, []string{"far"}, f.sender.sent())
}

func TestRecoverStalled_RestartsOrphanedPickups(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "a", 0.1, 0.1)
	p := f.createPickup(t)

	require.NoError(t, f.engine.RecoverStalled(context.Background(), 50))

	assert.Equal(t, []string{"a"}, f.sender.sent())
	row := f.status(t, p.ID)
	require.NotNil(t, row.AssignedVendorRef)
	assert.Equal(t, "a", *row.AssignedVendorRef)
}

func TestSweeper_RunOnceRecoversExpiredOffer(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "near", 0.1, 0.1)
	f.addVendor(t, "far", 5, 5)
	p := f.createPickup(t)
	require.NoError(t, f.engine.Dispatch(context.Background(), p.ID, nil))

	// Lose the in-memory state, as after a crash, then let the offer lapse
	f.engine.DiscardSession(p.ID)
	f.clock.Advance(2 * time.Hour)

	sweeper := dispatch.NewSweeper(f.pickups, f.engine, f.clock, zerolog.Nop(), time.Second, 50)
	sweeper.RunOnce(context.Background())

	current := f.status(t, p.ID)
	require.NotNil(t, current.AssignedVendorRef)
	assert.Equal(t, "far", *current.AssignedVendorRef)
}

// reloadFailRepo loses every reservation and fails the follow-up reload,
// simulating a store that drops out mid-advance.
type reloadFailRepo struct {
	domainpickup.Repository
	finds int
}

func (r *reloadFailRepo) ReserveOffer(context.Context, string, string, time.Time) (*domainpickup.Pickup, bool, error) {
	return nil, false, nil
}

func (r *reloadFailRepo) FindByID(ctx context.Context, id string) (*domainpickup.Pickup, error) {
	r.finds++
	if r.finds > 1 {
		return nil, errors.New("connection reset by peer")
	}
	return r.Repository.FindByID(ctx, id)
}

func TestEngine_LostReservationReloadFailureSurfaces(t *testing.T) {
	f := newEngineFixture(t)
	f.addVendor(t, "v1", 0.1, 0.1)
	p := f.createPickup(t)

	repo := &reloadFailRepo{Repository: f.pickups}
	engine := dispatch.NewEngine(repo, f.rejections, f.vendors, f.sender, f.clock, zerolog.Nop(), dispatch.Options{
		OfferTTL: time.Hour,
	})
	t.Cleanup(engine.Shutdown)

	err := engine.Dispatch(context.Background(), p.ID, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reload pickup after lost reservation")
	assert.Empty(t, f.sender.sent())
}
