package sequence

import (
	"github.com/jberkowitz/tibbar/internal/gendata"
	"github.com/jberkowitz/tibbar/internal/memstore"
	"github.com/jberkowitz/tibbar/internal/resource"
)

// branchOffsets are legal, instruction-aligned displacements RelativeBranching
// chooses from; all fit comfortably inside RV32I's 13-bit signed branch
// offset field.
var branchOffsets = []int64{8, 16, 32, 64, -8, -16, -32, -64}

// RelativeBranching emits a branch whose displacement falls in the legal
// encoded range and points to an address the engine then reserves as a code
// placement (spec 4.5 RelativeBranching).
type RelativeBranching struct {
	claim  *resource.Claim
	step   int
	offset int64
}

func NewRelativeBranching() *RelativeBranching { return &RelativeBranching{} }

func (s *RelativeBranching) Name() string { return "relative_branching" }

func (s *RelativeBranching) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, 2)}}
}

func (s *RelativeBranching) SetClaim(c *resource.Claim) { s.claim = c }

func (s *RelativeBranching) Next(ctx *Context) (gendata.GenData, bool, error) {
	rs1, _ := regOf(s.claim, resource.GPR, 0)
	rs2, _ := regOf(s.claim, resource.GPR, 1)
	switch s.step {
	case 0:
		s.offset = branchOffsets[ctx.RNG.Intn(len(branchOffsets))]
		target := memstore.Address(int64(ctx.Model.State.PC) + s.offset)
		s.step = 1
		return gendata.Reserve(target), true, nil
	case 1:
		s.step = 2
		return gendata.Instr("beq", []int64{regNum(rs1), regNum(rs2), s.offset}), true, nil
	default:
		return gendata.GenData{}, false, nil
	}
}

// AbsoluteBranching emits an indirect jump using a claim-owned GPR preloaded
// with an allocated code address (spec 4.5 AbsoluteBranching).
type AbsoluteBranching struct {
	claim   *resource.Claim
	step    int
	target  memstore.Address
	pending []gendata.GenData
}

func NewAbsoluteBranching() *AbsoluteBranching { return &AbsoluteBranching{} }

func (s *AbsoluteBranching) Name() string { return "absolute_branching" }

func (s *AbsoluteBranching) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, 1)}}
}

func (s *AbsoluteBranching) SetClaim(c *resource.Claim) { s.claim = c }

func (s *AbsoluteBranching) Next(ctx *Context) (gendata.GenData, bool, error) {
	rs1, _ := regOf(s.claim, resource.GPR, 0)
	switch s.step {
	case 0:
		// The target must lie past the jalr even after a RoundRobinFunnel
		// interleaves other children's instructions ahead of it.
		offset := int64(128 + 4*ctx.RNG.Intn(8))
		s.target = memstore.Address(int64(ctx.Model.State.PC) + offset)
		s.step = 1
		return gendata.Reserve(s.target), true, nil
	case 1:
		s.pending = materializeAddr(regNum(rs1), int64(s.target))
		s.step = 2
		it := s.pending[0]
		s.pending = s.pending[1:]
		return it, true, nil
	case 2:
		if len(s.pending) > 0 {
			it := s.pending[0]
			s.pending = s.pending[1:]
			return it, true, nil
		}
		s.step = 3
		return gendata.Instr("jalr", []int64{0, regNum(rs1), 0}), true, nil
	default:
		return gendata.GenData{}, false, nil
	}
}
