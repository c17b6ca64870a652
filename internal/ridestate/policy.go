package ridestate

import (
	"fmt"
	"strings"

	"github.com/example/chainride/internal/models"
)

// Evidence is everything the aggregator knows about a client's relation to
// a ride.
type Evidence struct {
	RideStatus      models.RideStatus
	ClientID        uint64
	Passengers      []models.Passenger
	RawPassengerIDs []uint64
	Requests        []models.RideRequest
}

// PassengerPolicy decides passenger membership from the gathered evidence.
type PassengerPolicy func(Evidence) bool

// StrictPassengerPolicy accepts only positive evidence: a passenger record,
// a raw passenger id equal to the client id, or an accepted request.
func StrictPassengerPolicy(e Evidence) bool {
	for _, p := range e.Passengers {
		if p.ClientID == e.ClientID {
			return true
		}
	}
	// Some contract revisions store client ids directly in the passenger list.
	for _, id := range e.RawPassengerIDs {
		if id == e.ClientID {
			return true
		}
	}
	for _, rq := range e.Requests {
		if rq.ClientID == e.ClientID && rq.Status.Boarded() {
			return true
		}
	}
	return false
}

// LenientPassengerPolicy additionally treats any client as a passenger of a
// completed ride for which no passenger data exists at all, so a payment is
// never blocked by missing ledger data.
//
// This admits clients who never rode. It is kept as the default until the
// ledger reliably keeps passenger sets in sync with accepted requests.
func LenientPassengerPolicy(e Evidence) bool {
	if StrictPassengerPolicy(e) {
		return true
	}
	return e.RideStatus == models.RideCompleted && len(e.Passengers) == 0 && len(e.RawPassengerIDs) == 0
}

// PolicyByName maps a configuration value to a policy.
func PolicyByName(name string) (PassengerPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lenient":
		return LenientPassengerPolicy, nil
	case "strict":
		return StrictPassengerPolicy, nil
	default:
		return nil, fmt.Errorf("unknown passenger policy %q", name)
	}
}
