package entitylock

import (
	"fmt"
	"strings"
)

// Policy selects what happens to a handle once nobody uses it.
type Policy int

const (
	// PolicyReclaim removes a handle from the registry as soon as it is not
	// held and no acquisition for its ID is in flight.
	PolicyReclaim Policy = iota
	// PolicyRetain keeps one handle per distinct ID for the lifetime of the
	// locker. No reference counting, but memory grows with the number of IDs.
	PolicyRetain
)

func (p Policy) String() string {
	switch p {
	case PolicyReclaim:
		return "reclaim"
	case PolicyRetain:
		return "retain"
	default:
		return "unknown"
	}
}

// ParsePolicy converts "reclaim" or "retain" (case-insensitive) to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reclaim":
		return PolicyReclaim, nil
	case "retain":
		return PolicyRetain, nil
	default:
		return PolicyReclaim, fmt.Errorf("invalid policy %q (expected one of: reclaim, retain)", s)
	}
}

// Options configures an EntityLocker
type Options struct {
	Name   string // Used as "locker" label of the metrics ("" = "default")
	Policy Policy // Handle lifecycle (default PolicyReclaim)
}

// DefaultOptions returns the default EntityLocker options
func DefaultOptions() *Options {
	return &Options{
		Name:   "default",
		Policy: PolicyReclaim,
	}
}
