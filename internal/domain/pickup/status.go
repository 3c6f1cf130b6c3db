package pickup

// Status represents the lifecycle state of a pickup request
type Status string

const (
	// StatusRequested indicates the pickup was created but dispatch has not started
	StatusRequested Status = "REQUESTED"

	// StatusFindingVendor indicates the dispatcher is iterating vendor candidates
	StatusFindingVendor Status = "FINDING_VENDOR"

	// StatusAssigned indicates a vendor accepted the offer
	StatusAssigned Status = "ASSIGNED"

	// StatusOnTheWay indicates the assigned vendor is en route
	StatusOnTheWay Status = "ON_THE_WAY"

	// StatusCompleted indicates the vendor finished the pickup
	StatusCompleted Status = "COMPLETED"

	// StatusCancelled indicates the customer cancelled the pickup
	StatusCancelled Status = "CANCELLED"

	// StatusNoVendorAvailable indicates every candidate was exhausted
	StatusNoVendorAvailable Status = "NO_VENDOR_AVAILABLE"
)

// IsTerminalForDispatch reports whether no further dispatch may occur.
// NO_VENDOR_AVAILABLE is not included: a customer retry restarts dispatch from it.
func (s Status) IsTerminalForDispatch() bool {
	switch s {
	case StatusAssigned, StatusOnTheWay, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// IsAbsorbing reports whether no transition at all leaves this status
func (s Status) IsAbsorbing() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanBeginFinding reports whether begin_finding may move this status to FINDING_VENDOR
func (s Status) CanBeginFinding() bool {
	switch s {
	case StatusRequested, StatusNoVendorAvailable, StatusFindingVendor:
		return true
	}
	return false
}
