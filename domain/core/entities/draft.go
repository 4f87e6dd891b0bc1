package entities

import (
	"fmt"
	"strings"

	"memorymap-backend/domain/core/valueobjects"
	pkgerrors "memorymap-backend/pkg/errors"
)

// AddressPlaceholder is the draft address while a lookup is in flight.
const AddressPlaceholder = "Fetching address..."

// DraftState is a node of the memory creation state machine.
type DraftState string

const (
	DraftEmpty            DraftState = "EMPTY"
	DraftLocationCaptured DraftState = "LOCATION_CAPTURED"
	DraftAddressResolving DraftState = "ADDRESS_RESOLVING"
	DraftReady            DraftState = "READY"
	DraftSubmitting       DraftState = "SUBMITTING"
)

// draftTransitions enumerates every legal edge. Submitting leaves either to
// Empty (committed) or back to Ready (write failed).
var draftTransitions = map[DraftState][]DraftState{
	DraftEmpty:            {DraftLocationCaptured},
	DraftLocationCaptured: {DraftAddressResolving, DraftLocationCaptured, DraftEmpty},
	DraftAddressResolving: {DraftReady, DraftLocationCaptured, DraftEmpty},
	DraftReady:            {DraftSubmitting, DraftLocationCaptured, DraftEmpty},
	DraftSubmitting:       {DraftEmpty, DraftReady},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to DraftState) bool {
	for _, next := range draftTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Draft is the single-owner record of a memory being created.
type Draft struct {
	State       DraftState `json:"state"`
	Description string     `json:"description"`
	Lat         float64    `json:"lat"`
	Lng         float64    `json:"lng"`
	Address     string     `json:"address"`
	Date        string     `json:"date"`
}

// NewDraft returns an empty draft.
func NewDraft() Draft {
	return Draft{State: DraftEmpty}
}

// IsSubmitting reports whether a commit is in flight.
func (d Draft) IsSubmitting() bool {
	return d.State == DraftSubmitting
}

// CanEditDescription reports whether the description may change in the
// current state.
func (d Draft) CanEditDescription() bool {
	switch d.State {
	case DraftLocationCaptured, DraftAddressResolving, DraftReady:
		return true
	}
	return false
}

// TransitionTo moves the draft along a legal edge.
func (d *Draft) TransitionTo(next DraftState) error {
	if !CanTransition(d.State, next) {
		return pkgerrors.NewConflictError(fmt.Sprintf("draft cannot move from %s to %s", d.State, next)).
			WithCode(pkgerrors.CodeInvalidTransition).
			WithDetail("state", string(d.State))
	}
	d.State = next
	return nil
}

// Validate checks the commit preconditions: a non-blank description and a
// captured location.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Description) == "" {
		return pkgerrors.NewValidationError("description is required").
			WithCode(pkgerrors.CodeDescriptionRequired)
	}
	if !valueobjects.HasCoordinates(d.Lat, d.Lng) {
		return pkgerrors.NewValidationError("a location must be selected").
			WithCode(pkgerrors.CodeLocationRequired)
	}
	return nil
}

// ToMemory builds the memory that a commit writes.
func (d Draft) ToMemory(id string, timestamp int64) Memory {
	return Memory{
		ID:          id,
		Description: d.Description,
		Date:        d.Date,
		Lat:         d.Lat,
		Lng:         d.Lng,
		Address:     d.Address,
		Timestamp:   timestamp,
	}
}
