package pool

import "fmt"

// Capability gates privileged pool operations.
type Capability int32

const (
	// CapGovernance may initiate shutdown and force premium rates.
	CapGovernance Capability = iota
	// CapKeeper may commit and reveal liquidation purchases.
	CapKeeper
	// CapOperator may run batch fulfillment and epoch ticks.
	CapOperator
)

func (c Capability) String() string {
	switch c {
	case CapGovernance:
		return "governance"
	case CapKeeper:
		return "keeper"
	case CapOperator:
		return "operator"
	default:
		return fmt.Sprintf("unknown(%d)", int32(c))
	}
}

// Authorizer is a static grant table, built from configuration at startup.
type Authorizer struct {
	grants map[string]map[Capability]bool
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{grants: make(map[string]map[Capability]bool)}
}

func (a *Authorizer) Grant(authority string, caps ...Capability) {
	m, ok := a.grants[authority]
	if !ok {
		m = make(map[Capability]bool)
		a.grants[authority] = m
	}
	for _, c := range caps {
		m[c] = true
	}
}

func (a *Authorizer) Allowed(authority string, c Capability) bool {
	return a.grants[authority][c]
}

// Keepers returns authorities with the keeper capability, for wiring the
// purchase machine's registry.
func (a *Authorizer) Keepers() []string {
	var out []string
	for authority, caps := range a.grants {
		if caps[CapKeeper] {
			out = append(out, authority)
		}
	}
	return out
}

// IsAuthorized satisfies the keeper registry interface directly.
func (a *Authorizer) IsAuthorized(keeper string) bool {
	return a.Allowed(keeper, CapKeeper)
}
