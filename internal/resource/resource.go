// Package resource implements the Resource Space & Reserver described in
// spec section 4.2: naming of register-like resources and the atomic,
// all-or-nothing claim protocol that lets independent sequences interleave
// without register conflicts.
package resource

import (
	"errors"
	"fmt"
	"sort"
)

// Namespace groups resources of a kind. GPR and FPR are numbered; CSR is
// named.
type Namespace string

const (
	GPR Namespace = "GPR"
	FPR Namespace = "FPR"
	CSR Namespace = "CSR"
)

// Resource is a single reservable item: (namespace, id).
type Resource struct {
	Namespace Namespace
	ID        string
}

func (r Resource) String() string {
	return fmt.Sprintf("%s:%s", r.Namespace, r.ID)
}

// Reg builds a numbered GPR/FPR resource.
func Reg(ns Namespace, n int) Resource {
	return Resource{Namespace: ns, ID: fmt.Sprintf("%d", n)}
}

// Csr builds a named CSR resource.
func Csr(name string) Resource {
	return Resource{Namespace: CSR, ID: name}
}

// poolState is the mutually exclusive pool state of a Resource (spec 3).
type poolState int

const (
	stateUnassigned poolState = iota
	stateExclusive
	stateShared
)

// ErrInvalidResource is raised when a claim spec names an architecturally
// forbidden resource (GPR 0, a read-only CSR, ...). It distinguishes
// programmer error from ordinary capacity exhaustion, which is reported by
// returning (nil, nil) from Request instead.
var ErrInvalidResource = errors.New("resource: invalid resource")

// Claim is an atomic grant of resources to one sequence.
type Claim struct {
	Exclusive map[Resource]bool
	Shared    map[Resource]bool
}

// Has reports whether the claim grants (exclusive or shared) access to r.
func (c *Claim) Has(r Resource) bool {
	if c == nil {
		return false
	}
	return c.Exclusive[r] || c.Shared[r]
}

// CanWrite reports whether the claim permits writing r: only exclusive
// holders may write. SHARED here models "read together", not "write
// together", so a resource held only in the shared set reports false.
func (c *Claim) CanWrite(r Resource) bool {
	if c == nil {
		return false
	}
	return c.Exclusive[r]
}

// Item is one entry of a ClaimSpec: either a concrete resource or an any-N
// slot the Reserver resolves against a namespace.
type Item struct {
	Concrete  *Resource
	AnyNS     Namespace
	AnyCount  int
	IsAnySlot bool
}

// ConcreteItem requests a specific resource.
func ConcreteItem(r Resource) Item { return Item{Concrete: &r} }

// AnySlot requests n unspecified resources from a namespace.
func AnySlot(ns Namespace, n int) Item { return Item{AnyNS: ns, AnyCount: n, IsAnySlot: true} }

// ClaimSpec is what a sequence asks the Reserver for (spec 4.2).
type ClaimSpec struct {
	Exclusive []Item
	Shared    []Item
}

// forbidden reports whether a resource may never be reserved at all:
// GPR 0 is architecturally zero, and read-only CSRs can't be claimed for
// writing or otherwise taken out of the pool.
type forbiddenFunc func(Resource) bool

// Space is the Reserver: it owns pool state for every resource it knows
// about and grants/releases Claims.
type Space struct {
	forbidden forbiddenFunc

	state    map[Resource]poolState
	owner    map[Resource]*Claim // exclusive owner
	sharedRC map[Resource]int    // shared refcount

	universe map[Namespace][]Resource
}

// NewSpace builds a Reserver over the given per-namespace resource
// universes. forbidden marks resources that can never be reserved
// (GPR 0, read-only CSRs); requesting one is ErrInvalidResource, not a
// capacity failure.
func NewSpace(universe map[Namespace][]Resource, forbidden forbiddenFunc) *Space {
	if forbidden == nil {
		forbidden = func(Resource) bool { return false }
	}
	return &Space{
		forbidden: forbidden,
		state:     make(map[Resource]poolState),
		owner:     make(map[Resource]*Claim),
		sharedRC:  make(map[Resource]int),
		universe:  universe,
	}
}

// Reservable lists every resource in namespace ns that is not
// architecturally forbidden, in a stable order.
func (s *Space) Reservable(ns Namespace) []Resource {
	var out []Resource
	for _, r := range s.universe[ns] {
		if !s.forbidden(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Space) stateOf(r Resource) poolState {
	return s.state[r] // zero value is stateUnassigned
}

// resolveAny picks `count` currently-available resources for an any-N slot.
// exclusive controls whether "available" means UNASSIGNED (for EXCLUSIVE
// items) or not-EXCLUSIVE (for SHARED items). picked tracks resources
// already claimed earlier in this same Request call so a single call never
// double-books one resource across two any-N items.
func (s *Space) resolveAny(ns Namespace, count int, exclusive bool, picked map[Resource]bool) ([]Resource, bool) {
	var out []Resource
	for _, r := range s.Reservable(ns) {
		if picked[r] {
			continue
		}
		st := s.stateOf(r)
		ok := false
		if exclusive {
			ok = st == stateUnassigned
		} else {
			ok = st != stateExclusive
		}
		if !ok {
			continue
		}
		out = append(out, r)
		if len(out) == count {
			return out, true
		}
	}
	return nil, false
}

// Request grants a Claim atomically: either every item in spec can be
// satisfied right now, or none of the pool's state changes and Request
// returns (nil, nil). A spec naming a forbidden resource returns
// ErrInvalidResource instead, regardless of capacity.
func (s *Space) Request(spec ClaimSpec) (*Claim, error) {
	// Validate every concrete resource up front: InvalidResource must
	// surface even if some other item would have failed for capacity
	// reasons.
	for _, it := range spec.Exclusive {
		if it.Concrete != nil && s.forbidden(*it.Concrete) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidResource, *it.Concrete)
		}
	}
	for _, it := range spec.Shared {
		if it.Concrete != nil && s.forbidden(*it.Concrete) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidResource, *it.Concrete)
		}
	}

	picked := make(map[Resource]bool)
	var wantExclusive []Resource
	var wantShared []Resource

	for _, it := range spec.Exclusive {
		if it.Concrete != nil {
			r := *it.Concrete
			if picked[r] || s.stateOf(r) != stateUnassigned {
				return nil, nil
			}
			picked[r] = true
			wantExclusive = append(wantExclusive, r)
			continue
		}
		got, ok := s.resolveAny(it.AnyNS, it.AnyCount, true, picked)
		if !ok {
			return nil, nil
		}
		for _, r := range got {
			picked[r] = true
		}
		wantExclusive = append(wantExclusive, got...)
	}

	for _, it := range spec.Shared {
		if it.Concrete != nil {
			r := *it.Concrete
			if picked[r] {
				return nil, nil // already claimed exclusive in this same request
			}
			if s.stateOf(r) == stateExclusive {
				return nil, nil
			}
			picked[r] = true
			wantShared = append(wantShared, r)
			continue
		}
		got, ok := s.resolveAny(it.AnyNS, it.AnyCount, false, picked)
		if !ok {
			return nil, nil
		}
		for _, r := range got {
			picked[r] = true
		}
		wantShared = append(wantShared, got...)
	}

	claim := &Claim{Exclusive: make(map[Resource]bool), Shared: make(map[Resource]bool)}
	for _, r := range wantExclusive {
		s.state[r] = stateExclusive
		s.owner[r] = claim
		claim.Exclusive[r] = true
	}
	for _, r := range wantShared {
		if s.state[r] == stateUnassigned {
			s.state[r] = stateShared
		}
		s.sharedRC[r]++
		claim.Shared[r] = true
	}
	return claim, nil
}

// Release returns every resource held by claim to the pool: EXCLUSIVE
// resources go straight back to UNASSIGNED, SHARED resources decrement a
// refcount and only go back to UNASSIGNED at zero.
func (s *Space) Release(claim *Claim) {
	if claim == nil {
		return
	}
	for r := range claim.Exclusive {
		if s.owner[r] == claim {
			delete(s.owner, r)
			s.state[r] = stateUnassigned
		}
	}
	for r := range claim.Shared {
		if s.sharedRC[r] > 0 {
			s.sharedRC[r]--
		}
		if s.sharedRC[r] == 0 {
			s.state[r] = stateUnassigned
		}
	}
}
