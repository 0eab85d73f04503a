package sequence

import (
	"github.com/jberkowitz/tibbar/internal/gendata"
	"github.com/jberkowitz/tibbar/internal/resource"
)

// ValuePattern selects how SetGPRs/SetFPRs choose the value each target
// register ends up holding.
type ValuePattern int

const (
	PatternRandom ValuePattern = iota
	PatternZero
	PatternSentinel // 0xA5A5A5A5-shaped, alternating bit patterns
)

func valueFor(pattern ValuePattern, idx int, rng interface{ Range(int64, int64) int64 }) int64 {
	switch pattern {
	case PatternZero:
		return 0
	case PatternSentinel:
		sentinels := []int64{0x5A5A5A5A, -0x5A5A5A5B, 0x7FFFFFFF, -0x80000000, 0x00000001, -0x00000001}
		return sentinels[idx%len(sentinels)]
	default:
		return rng.Range(-1<<30, 1<<30)
	}
}

// SetGPRs issues a sequence of immediate-loads so that a named set of
// registers ends up holding chosen values (spec 4.5 SetGPRs).
type SetGPRs struct {
	Count   int
	Pattern ValuePattern

	claim   *resource.Claim
	idx     int
	pending []gendata.GenData
}

func NewSetGPRs(count int, pattern ValuePattern) *SetGPRs {
	return &SetGPRs{Count: count, Pattern: pattern}
}

func (s *SetGPRs) Name() string { return "set_gprs" }

func (s *SetGPRs) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, s.Count)}}
}

func (s *SetGPRs) SetClaim(c *resource.Claim) { s.claim = c }

func (s *SetGPRs) Next(ctx *Context) (gendata.GenData, bool, error) {
	if len(s.pending) > 0 {
		it := s.pending[0]
		s.pending = s.pending[1:]
		return it, true, nil
	}
	if s.idx >= s.Count {
		return gendata.GenData{}, false, nil
	}
	r, _ := regOf(s.claim, resource.GPR, s.idx)
	val := valueFor(s.Pattern, s.idx, ctx.RNG)
	s.idx++
	s.pending = materializeAddr(regNum(r), val)
	it := s.pending[0]
	s.pending = s.pending[1:]
	return it, true, nil
}

// SetFPRs issues float-loads (via an integer-register stage-and-move, the
// only way this catalog's fmv.w.x form gets a bit pattern into an FPR) so a
// named set of FPRs ends up holding chosen values (spec 4.5 SetFPRs).
type SetFPRs struct {
	Count   int
	Pattern ValuePattern

	claim   *resource.Claim
	idx     int
	pending []gendata.GenData
	scratch int64 // a GPR used transiently to stage each value; caller picks one it owns
}

func NewSetFPRs(count int, pattern ValuePattern, scratchGPR int64) *SetFPRs {
	return &SetFPRs{Count: count, Pattern: pattern, scratch: scratchGPR}
}

func (s *SetFPRs) Name() string { return "set_fprs" }

func (s *SetFPRs) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.FPR, s.Count)}}
}

func (s *SetFPRs) SetClaim(c *resource.Claim) { s.claim = c }

func (s *SetFPRs) Next(ctx *Context) (gendata.GenData, bool, error) {
	if len(s.pending) > 0 {
		it := s.pending[0]
		s.pending = s.pending[1:]
		return it, true, nil
	}
	if s.idx >= s.Count {
		return gendata.GenData{}, false, nil
	}
	r, _ := regOf(s.claim, resource.FPR, s.idx)
	val := valueFor(s.Pattern, s.idx, ctx.RNG)
	s.idx++
	s.pending = append(materializeAddr(s.scratch, val), gendata.Instr("fmv.w.x", []int64{regNum(r), s.scratch}))
	it := s.pending[0]
	s.pending = s.pending[1:]
	return it, true, nil
}
