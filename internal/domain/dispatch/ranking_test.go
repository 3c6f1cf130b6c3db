package dispatch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrapco/scrapco-go/internal/domain/vendor"
)

func ptr(f float64) *float64 { return &f }

func backend(ref string, lat, lon float64) *vendor.Backend {
	return &vendor.Backend{VendorRef: ref, OfferURL: "https://example.com", Latitude: ptr(lat), Longitude: ptr(lon)}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Berlin to Munich, roughly 504 km great-circle
	dist := HaversineKm(52.5200, 13.4050, 48.1351, 11.5820)
	assert.InDelta(t, 504, dist, 5)
}

func TestHaversineKm_SamePoint(t *testing.T) {
	assert.Equal(t, 0.0, HaversineKm(10.5, 20.5, 10.5, 20.5))
}

func TestRank_OrdersByDistance(t *testing.T) {
	// Pickup at the origin; far is ~157 km out, near is ~15.7 km out
	near := backend("near", 0.1, 0.1)
	far := backend("far", 1.0, 1.0)

	candidates := Rank(0, 0, []*vendor.Backend{far, near})

	assert.Len(t, candidates, 2)
	assert.Equal(t, "near", candidates[0].Vendor.VendorRef)
	assert.Equal(t, "far", candidates[1].Vendor.VendorRef)
	assert.Less(t, candidates[0].DistanceKm, candidates[1].DistanceKm)
}

func TestRank_MissingCoordinatesSortLast(t *testing.T) {
	located := backend("located", 0.5, 0.5)
	unlocated := &vendor.Backend{VendorRef: "unlocated", OfferURL: "https://example.com"}

	candidates := Rank(0, 0, []*vendor.Backend{unlocated, located})

	assert.Equal(t, "located", candidates[0].Vendor.VendorRef)
	assert.Equal(t, "unlocated", candidates[1].Vendor.VendorRef)
	assert.True(t, math.IsInf(candidates[1].DistanceKm, 1))
}

func TestRank_StableForEqualDistances(t *testing.T) {
	a := backend("a", 1, 1)
	b := backend("b", 1, 1)
	c := backend("c", 1, 1)

	candidates := Rank(0, 0, []*vendor.Backend{a, b, c})

	assert.Equal(t, "a", candidates[0].Vendor.VendorRef)
	assert.Equal(t, "b", candidates[1].Vendor.VendorRef)
	assert.Equal(t, "c", candidates[2].Vendor.VendorRef)
}

func TestExclude_RemovesListedVendors(t *testing.T) {
	candidates := Rank(0, 0, []*vendor.Backend{
		backend("keep", 0.1, 0.1),
		backend("skip", 0.2, 0.2),
	})

	remaining := Exclude(candidates, ExclusionSet([]string{"skip"}))

	assert.Len(t, remaining, 1)
	assert.Equal(t, "keep", remaining[0].Vendor.VendorRef)
}

func TestExclusionSet_UnionsGroups(t *testing.T) {
	set := ExclusionSet([]string{"a", "b"}, []string{"b", "c"}, nil)

	assert.Len(t, set, 3)
	assert.Contains(t, set, "a")
	assert.Contains(t, set, "b")
	assert.Contains(t, set, "c")
}
