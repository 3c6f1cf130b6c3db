package steps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scrapco/scrapco-go/internal/adapters/persistence"
	appdispatch "github.com/scrapco/scrapco-go/internal/application/dispatch"
	domainpickup "github.com/scrapco/scrapco-go/internal/domain/pickup"
	"github.com/scrapco/scrapco-go/internal/domain/shared"
	"github.com/scrapco/scrapco-go/internal/domain/vendor"
	"github.com/scrapco/scrapco-go/test/helpers"
)

// recordingSender captures offers instead of sending HTTP
type recordingSender struct {
	mu     sync.Mutex
	offers []string
}

func (s *recordingSender) SendOffer(_ context.Context, v *vendor.Backend, _ *domainpickup.Pickup, _ []domainpickup.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, v.VendorRef)
	return nil
}

func (s *recordingSender) sentTo(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.offers {
		if r == ref {
			return true
		}
	}
	return false
}

type dispatchContext struct {
	pickups    *persistence.PickupRepositoryGORM
	rejections *persistence.RejectionRepositoryGORM
	vendors    *persistence.VendorDirectoryGORM
	sender     *recordingSender
	clock      *shared.MockClock
	engine     *appdispatch.Engine

	pickupID    string
	acceptedRow *domainpickup.Pickup
	acceptErr   error
}

func (dc *dispatchContext) reset() error {
	if err := helpers.TruncateAllTables(); err != nil {
		return err
	}
	if dc.engine != nil {
		dc.engine.Shutdown()
	}

	db := helpers.SharedTestDB
	dc.clock = shared.NewMockClock(time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))
	dc.pickups = persistence.NewPickupRepository(db)
	dc.rejections = persistence.NewRejectionRepository(db)
	dc.vendors = persistence.NewVendorDirectory(db, dc.clock)
	dc.sender = &recordingSender{}
	dc.engine = appdispatch.NewEngine(dc.pickups, dc.rejections, dc.vendors, dc.sender, dc.clock, zerolog.Nop(), appdispatch.Options{
		OfferTTL: time.Hour,
	})

	dc.pickupID = ""
	dc.acceptedRow = nil
	dc.acceptErr = nil
	return nil
}

// Given steps

func (dc *dispatchContext) aPickupRequestedAtCoordinates(lat, lon float64) error {
	p := &domainpickup.Pickup{
		ID:         uuid.NewString(),
		CustomerID: "customer-1",
		Address:    "12 Alloy Street",
		Latitude:   lat,
		Longitude:  lon,
		TimeSlot:   "morning",
		Status:     domainpickup.StatusRequested,
		CreatedAt:  dc.clock.Now(),
	}
	if err := dc.pickups.Create(context.Background(), p, []domainpickup.Item{
		{ScrapTypeID: "copper", ScrapTypeName: "Copper", EstimatedQuantity: "5 kg"},
	}); err != nil {
		return err
	}
	dc.pickupID = p.ID
	return nil
}

func (dc *dispatchContext) aVendorAtCoordinates(ref string, lat, lon float64) error {
	_, err := dc.vendors.Upsert(context.Background(), &vendor.Backend{
		VendorRef: ref,
		OfferURL:  "https://" + ref + ".example.com",
		Latitude:  &lat,
		Longitude: &lon,
	})
	return err
}

func (dc *dispatchContext) vendorPreviouslyRejectedThePickup(ref string) error {
	return dc.rejections.Record(context.Background(), dc.pickupID, ref, dc.clock.Now())
}

// When steps

func (dc *dispatchContext) dispatchRunsForThePickup() error {
	return dc.engine.Dispatch(context.Background(), dc.pickupID, nil)
}

func (dc *dispatchContext) vendorAcceptsTheOffer(ref string) error {
	dc.acceptedRow, dc.acceptErr = dc.engine.OnAccept(context.Background(), dc.pickupID, ref)
	return dc.acceptErr
}

func (dc *dispatchContext) vendorRejectsTheOffer(ref string) error {
	_, err := dc.engine.OnReject(context.Background(), dc.pickupID, ref)
	return err
}

func (dc *dispatchContext) theOfferToVendorExpires(ref string) error {
	dc.clock.Advance(2 * time.Hour)
	return dc.engine.OnTimeout(context.Background(), dc.pickupID, ref)
}

func (dc *dispatchContext) theOfferDeadlinePasses() error {
	dc.clock.Advance(2 * time.Hour)
	return nil
}

func (dc *dispatchContext) theCustomerCancelsThePickup() error {
	_, modified, err := dc.pickups.Cancel(context.Background(), dc.pickupID, "customer-1", dc.clock.Now())
	if err != nil {
		return err
	}
	if !modified {
		return fmt.Errorf("cancel modified no rows")
	}
	dc.engine.DiscardSession(dc.pickupID)
	return nil
}

// Then steps

func (dc *dispatchContext) anOfferShouldBeSentToVendor(ref string) error {
	if !dc.sender.sentTo(ref) {
		return fmt.Errorf("no offer was sent to vendor %q (offers: %v)", ref, dc.sender.offers)
	}
	return nil
}

func (dc *dispatchContext) thePickupStatusShouldBe(status string) error {
	row, err := dc.pickups.FindByID(context.Background(), dc.pickupID)
	if err != nil {
		return err
	}
	if string(row.Status) != status {
		return fmt.Errorf("expected status %s, got %s", status, row.Status)
	}
	return nil
}

func (dc *dispatchContext) thePickupShouldBeHeldByVendor(ref string) error {
	row, err := dc.pickups.FindByID(context.Background(), dc.pickupID)
	if err != nil {
		return err
	}
	if row.AssignedVendorRef == nil {
		return fmt.Errorf("no vendor holds the pickup")
	}
	if *row.AssignedVendorRef != ref {
		return fmt.Errorf("expected holder %q, got %q", ref, *row.AssignedVendorRef)
	}
	return nil
}

func (dc *dispatchContext) theAcceptanceShouldBeRefused() error {
	if dc.acceptErr != nil {
		return dc.acceptErr
	}
	if dc.acceptedRow != nil {
		return fmt.Errorf("acceptance unexpectedly succeeded")
	}
	return nil
}

func (dc *dispatchContext) theRejectionOfVendorShouldBeRecorded(ref string) error {
	refs, err := dc.rejections.List(context.Background(), dc.pickupID)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if r == ref {
			return nil
		}
	}
	return fmt.Errorf("rejection of %q not recorded (have %v)", ref, refs)
}

// InitializeDispatchScenario registers the dispatch step definitions
func InitializeDispatchScenario(sc *godog.ScenarioContext) {
	dc := &dispatchContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, dc.reset()
	})

	sc.Step(`^a pickup requested at coordinates (-?\d+\.?\d*), (-?\d+\.?\d*)$`, dc.aPickupRequestedAtCoordinates)
	sc.Step(`^a vendor "([^"]*)" at coordinates (-?\d+\.?\d*), (-?\d+\.?\d*)$`, dc.aVendorAtCoordinates)
	sc.Step(`^vendor "([^"]*)" previously rejected the pickup$`, dc.vendorPreviouslyRejectedThePickup)
	sc.Step(`^dispatch runs for the pickup$`, dc.dispatchRunsForThePickup)
	sc.Step(`^vendor "([^"]*)" accepts the offer$`, dc.vendorAcceptsTheOffer)
	sc.Step(`^vendor "([^"]*)" rejects the offer$`, dc.vendorRejectsTheOffer)
	sc.Step(`^the offer to vendor "([^"]*)" expires$`, dc.theOfferToVendorExpires)
	sc.Step(`^the offer deadline passes$`, dc.theOfferDeadlinePasses)
	sc.Step(`^the customer cancels the pickup$`, dc.theCustomerCancelsThePickup)
	sc.Step(`^an offer should be sent to vendor "([^"]*)"$`, dc.anOfferShouldBeSentToVendor)
	sc.Step(`^the pickup status should be "([^"]*)"$`, dc.thePickupStatusShouldBe)
	sc.Step(`^the pickup should be held by vendor "([^"]*)"$`, dc.thePickupShouldBeHeldByVendor)
	sc.Step(`^the acceptance should be refused$`, dc.theAcceptanceShouldBeRefused)
	sc.Step(`^the rejection of vendor "([^"]*)" should be recorded$`, dc.theRejectionOfVendorShouldBeRecorded)
}
