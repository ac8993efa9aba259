package engine

import "time"

/*
Policy is the per-family configuration of the revalidation rules.
TTL and cooldown are configuration inputs, not constants of the design:
dashboard aggregates typically run with a 5 minute TTL, the doctors list with
a 10 second cooldown after a failure.
*/
type Policy struct {
	// Family is the resource family the policy applies to.
	Family string

	// TTL is how long a fetched value counts as fresh. Zero disables retention
	// entirely: the family only deduplicates concurrent loads.
	TTL time.Duration

	// Cooldown suppresses new uncached loads for this long after a failure.
	Cooldown time.Duration

	// LoadTimeout bounds one loader call. Zero leaves it to the transport.
	LoadTimeout time.Duration
}

// Retain reports whether successful loads are stored.
func (p Policy) Retain() bool { return p.TTL > 0 }

// DedupOnly is the degenerate configuration used for raw GET calls:
// no retention, no cooldown, only in-flight sharing.
func DedupOnly(family string) Policy {
	return Policy{Family: family}
}

// Overrides are per-call adjustments to a family's policy.
type Overrides struct {
	TTL      *time.Duration
	Cooldown *time.Duration

	// Force always starts a load, bypassing the TTL check and any cooldown.
	Force bool
}

func (o Overrides) apply(p Policy) Policy {
	if o.TTL != nil {
		p.TTL = *o.TTL
	}
	if o.Cooldown != nil {
		p.Cooldown = *o.Cooldown
	}
	return p
}
