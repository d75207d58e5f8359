// Package expiry classifies cached tokens by how urgently they need to
// be renewed. Everything here is pure: callers pass the current time so
// the policy is fully deterministic under test.
package expiry

import (
	"time"

	"github.com/mirrorbucket/credmon/credstore"
)

// Assessment summarizes the renewal urgency of a token set.
type Assessment struct {
	// NeedsImmediateRenewal is true when any token with a known expiry
	// has no more remaining lifetime than the threshold, including
	// tokens that are already expired.
	NeedsImmediateRenewal bool

	// EarliestExpiry is the remaining lifetime of the soonest-expiring
	// token. It is negative for an already-expired token and only
	// meaningful when Bounded is true.
	EarliestExpiry time.Duration

	// Bounded is false when no token has a known expiry.
	Bounded bool

	// Counts by classification.
	Valid   int
	Urgent  int
	Expired int
	Unknown int
}

// Classification is the per-token renewal state used for reporting.
type Classification string

const (
	StateValid   Classification = "valid"
	StateUrgent  Classification = "urgent"
	StateExpired Classification = "expired"
	StateUnknown Classification = "unknown"
)

// Classify returns the renewal state of a single token at the given time.
func Classify(token credstore.Token, now time.Time, threshold time.Duration) Classification {
	if !token.ExpiryKnown {
		return StateUnknown
	}
	remaining := token.ExpiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return StateExpired
	case remaining <= threshold:
		// The boundary instant itself is inside the renewal window.
		return StateUrgent
	default:
		return StateValid
	}
}

// Evaluate computes the urgency assessment for a token set. Tokens with
// unknown expiry are counted but never contribute to urgency or to the
// earliest-expiry figure.
func Evaluate(tokens []credstore.Token, now time.Time, threshold time.Duration) Assessment {
	var a Assessment
	for _, token := range tokens {
		switch Classify(token, now, threshold) {
		case StateUnknown:
			a.Unknown++
			continue
		case StateExpired:
			a.Expired++
		case StateUrgent:
			a.Urgent++
		case StateValid:
			a.Valid++
		}

		remaining := token.ExpiresAt.Sub(now)
		if !a.Bounded || remaining < a.EarliestExpiry {
			a.EarliestExpiry = remaining
			a.Bounded = true
		}
	}
	a.NeedsImmediateRenewal = a.Urgent > 0 || a.Expired > 0
	return a
}
