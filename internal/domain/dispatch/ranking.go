package dispatch

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/scrapco/scrapco-go/internal/domain/vendor"
)

// earthRadiusKm is the great-circle Earth radius used by the haversine formula
const earthRadiusKm = 6371.0

// HaversineKm computes the great-circle distance in kilometers between two
// coordinate pairs.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// Candidate pairs a vendor backend with its distance to the pickup
type Candidate struct {
	Vendor     *vendor.Backend
	DistanceKm float64
}

// Rank orders vendors by ascending great-circle distance to the pickup
// location. Vendors with missing coordinates sort to the end. The sort is
// stable so equally-distant vendors keep directory order across sessions.
func Rank(pickupLat, pickupLon float64, vendors []*vendor.Backend) []Candidate {
	candidates := lo.Map(vendors, func(v *vendor.Backend, _ int) Candidate {
		dist := math.Inf(1)
		if v.HasLocation() {
			dist = HaversineKm(pickupLat, pickupLon, *v.Latitude, *v.Longitude)
		}
		return Candidate{Vendor: v, DistanceKm: dist}
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DistanceKm < candidates[j].DistanceKm
	})

	return candidates
}

// Exclude removes candidates whose vendor ref appears in the exclusion set
func Exclude(candidates []Candidate, excluded map[string]struct{}) []Candidate {
	if len(excluded) == 0 {
		return candidates
	}
	return lo.Filter(candidates, func(c Candidate, _ int) bool {
		_, skip := excluded[c.Vendor.VendorRef]
		return !skip
	})
}

// ExclusionSet builds the union of the caller-supplied skip refs, persisted
// rejections, and any extra sets accumulated in memory.
func ExclusionSet(refGroups ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, group := range refGroups {
		for _, ref := range group {
			set[ref] = struct{}{}
		}
	}
	return set
}
