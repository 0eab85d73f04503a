// Package sequence implements the lazy, finite GenData producers described
// in spec 4.5. Each concrete sequence is a small state machine with a
// next() contract (Design Notes 9: "Prefer the object-with-state form for
// maximum portability" over host-language generators/coroutines), grounded
// on the per-mnemonic emission shapes in gmofishsauce-wut4/asm/codegen.go
// and the read-only state inspection gmofishsauce-wut4/emul/trace.go
// performs on a running CPU.
package sequence

import (
	"github.com/jberkowitz/tibbar/internal/execmodel"
	"github.com/jberkowitz/tibbar/internal/gendata"
	"github.com/jberkowitz/tibbar/internal/isa"
	"github.com/jberkowitz/tibbar/internal/memstore"
	"github.com/jberkowitz/tibbar/internal/prng"
	"github.com/jberkowitz/tibbar/internal/resource"
)

// Context is the read-only view a Sequence gets on each Next call: the
// running Execution Model and Memory Store (queried, never mutated,
// directly by a sequence — spec 5: "model state is never mutated by
// sequences directly"), the ISA catalog, and the sequence's own private
// PRNG sub-stream.
type Context struct {
	Model       *execmodel.Model
	Store       *memstore.Store
	Catalog     isa.Catalog
	RNG         *prng.Stream
	TrapHandler memstore.Address
	ExitAddr    memstore.Address
	BootAddr    memstore.Address
}

// Sequence is a lazy, finite producer of GenData (spec 4.5).
type Sequence interface {
	// Name identifies the sequence for logging and funnel bookkeeping.
	Name() string
	// ResourceRequests returns the claim_spec this sequence needs before
	// it starts yielding.
	ResourceRequests() resource.ClaimSpec
	// SetClaim injects the granted Claim prior to the first item.
	SetClaim(c *resource.Claim)
	// Next returns the next item, or ok=false when the sequence is
	// exhausted. When the previous item was a DataBlob, its resolved
	// address is available via item.DataAddr before Next is called again.
	Next(ctx *Context) (item gendata.GenData, ok bool, err error)
}

// regOf picks the nth resource.Resource out of a claim's exclusive GPR set
// in a stable order, so a sequence can address "my first register", "my
// second register", etc. across calls.
func regOf(c *resource.Claim, ns resource.Namespace, n int) (resource.Resource, bool) {
	var all []resource.Resource
	for r := range c.Exclusive {
		if r.Namespace == ns {
			all = append(all, r)
		}
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].ID < all[i].ID {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	if n < 0 || n >= len(all) {
		return resource.Resource{}, false
	}
	return all[n], true
}

func regNum(r resource.Resource) int64 {
	var n int64
	for _, c := range r.ID {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
