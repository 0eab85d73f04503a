// Package funnel implements the composable funnel system from spec 4.6: a
// funnel is itself a Sequence that composes child sequences (or nested
// funnels) and drives their reservation lifecycle, grounded on the same
// object-with-state Sequence contract gmofishsauce-wut4/asm/codegen.go uses
// for its own multi-stage pseudo-op expansion.
package funnel

import (
	"github.com/jberkowitz/tibbar/internal/gendata"
	"github.com/jberkowitz/tibbar/internal/resource"
	"github.com/jberkowitz/tibbar/internal/sequence"
)

// defaultMaxFailedAttempts bounds how many times a funnel retries a child
// whose resource_requests() keep returning None before giving up on it
// (spec 4.6: "dropped after a configurable number of failed attempts").
const defaultMaxFailedAttempts = 8

// nestedFunnel is implemented only by funnel.Sequence itself: a funnel's
// own children reserve when THEY start, so the outer funnel must not
// reserve on a nested funnel's behalf (spec 4.6).
type nestedFunnel interface {
	isFunnel()
}

// child tracks one composed producer's reservation bookkeeping.
type child struct {
	seq            sequence.Sequence
	nested         bool
	claim          *resource.Claim
	reserved       bool
	failedAttempts int
	dropped        bool
	started        bool
}

func newChild(s sequence.Sequence) *child {
	_, nested := s.(nestedFunnel)
	return &child{seq: s, nested: nested}
}

// reserve attempts to bring the child's claim up, if it isn't already.
// Returns false if the child should be skipped (or has just been dropped)
// this round.
func (c *child) reserve(reserver *resource.Space) bool {
	if c.dropped || c.nested || c.reserved || reserver == nil {
		return !c.dropped
	}
	claim, err := reserver.Request(c.seq.ResourceRequests())
	if err != nil {
		// ErrInvalidResource: fatal to the sequence, the funnel drops it.
		// Nothing is logged.
		c.dropped = true
		return false
	}
	if claim == nil {
		c.failedAttempts++
		if c.failedAttempts >= defaultMaxFailedAttempts {
			c.dropped = true
		}
		return false
	}
	c.claim = claim
	c.reserved = true
	c.seq.SetClaim(claim)
	return true
}

func (c *child) release(reserver *resource.Space) {
	if c.nested || !c.reserved || reserver == nil {
		return
	}
	reserver.Release(c.claim)
	c.claim = nil
	c.reserved = false
}

// SimpleFunnel fully drains each child, in the order it was added, before
// moving to the next (spec 4.6).
type SimpleFunnel struct {
	Reserver *resource.Space

	children []*child
	idx      int
}

func NewSimpleFunnel(reserver *resource.Space, children ...sequence.Sequence) *SimpleFunnel {
	f := &SimpleFunnel{Reserver: reserver}
	for _, c := range children {
		f.children = append(f.children, newChild(c))
	}
	return f
}

func (f *SimpleFunnel) isFunnel() {}

func (f *SimpleFunnel) Name() string { return "simple_funnel" }

func (f *SimpleFunnel) ResourceRequests() resource.ClaimSpec { return resource.ClaimSpec{} }

func (f *SimpleFunnel) SetClaim(*resource.Claim) {}

// Done reports true exhaustion: every child has been fully drained (or
// dropped), as opposed to a transient "nothing to yield this round" from
// Next returning ok=false.
func (f *SimpleFunnel) Done() bool { return f.idx >= len(f.children) }

func (f *SimpleFunnel) Next(ctx *sequence.Context) (gendata.GenData, bool, error) {
	for f.idx < len(f.children) {
		c := f.children[f.idx]
		if c.dropped {
			f.idx++
			continue
		}
		if !c.reserve(f.Reserver) {
			if c.dropped {
				continue
			}
			// Capacity temporarily unavailable: SimpleFunnel has nowhere
			// else to go this round, so it keeps retrying this same child.
			return gendata.GenData{}, false, nil
		}
		item, ok, err := c.seq.Next(ctx)
		if err != nil {
			return gendata.GenData{}, false, err
		}
		if !ok {
			c.release(f.Reserver)
			f.idx++
			continue
		}
		return item, true, nil
	}
	return gendata.GenData{}, false, nil
}

// RoundRobinFunnel advances every child one item per round; a child that
// yields nothing this round is skipped, and children are dropped once
// exhausted or unreservable past the retry budget (spec 4.6).
type RoundRobinFunnel struct {
	Reserver *resource.Space

	children []*child
	cursor   int
}

func NewRoundRobinFunnel(reserver *resource.Space, children ...sequence.Sequence) *RoundRobinFunnel {
	f := &RoundRobinFunnel{Reserver: reserver}
	for _, c := range children {
		f.children = append(f.children, newChild(c))
	}
	return f
}

func (f *RoundRobinFunnel) isFunnel() {}

func (f *RoundRobinFunnel) Name() string { return "round_robin_funnel" }

func (f *RoundRobinFunnel) ResourceRequests() resource.ClaimSpec { return resource.ClaimSpec{} }

func (f *RoundRobinFunnel) SetClaim(*resource.Claim) {}

func (f *RoundRobinFunnel) liveCount() int {
	n := 0
	for _, c := range f.children {
		if !c.dropped {
			n++
		}
	}
	return n
}

// Done reports true exhaustion: every child has been dropped, as opposed
// to a transient "nothing to yield this round" from Next returning
// ok=false.
func (f *RoundRobinFunnel) Done() bool { return f.liveCount() == 0 }

// Next scans forward from the round-robin cursor, looking for the next
// child that yields an item this round. A full scan with nothing produced
// means every live child was skipped (transient reservation failure) or
// the funnel is genuinely exhausted.
func (f *RoundRobinFunnel) Next(ctx *sequence.Context) (gendata.GenData, bool, error) {
	if len(f.children) == 0 {
		return gendata.GenData{}, false, nil
	}
	for scanned := 0; scanned < len(f.children); scanned++ {
		i := f.cursor % len(f.children)
		f.cursor = (f.cursor + 1) % len(f.children)
		c := f.children[i]
		if c.dropped {
			continue
		}
		if !c.reserve(f.Reserver) {
			continue // either dropped just now, or skipped for this round
		}
		item, ok, err := c.seq.Next(ctx)
		if err != nil {
			return gendata.GenData{}, false, err
		}
		if !ok {
			c.release(f.Reserver)
			c.dropped = true
			continue
		}
		return item, true, nil
	}
	if f.liveCount() == 0 {
		return gendata.GenData{}, false, nil
	}
	// Every live child was skipped this round (all transiently unreservable):
	// nothing to yield right now, but the funnel is not exhausted.
	return gendata.GenData{}, false, nil
}
