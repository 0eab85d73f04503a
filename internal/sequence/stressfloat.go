package sequence

import (
	"github.com/jberkowitz/tibbar/internal/gendata"
	"github.com/jberkowitz/tibbar/internal/resource"
)

// floatMatrix are the edge-ish bit patterns stress float sequences sweep
// over. This catalog's FPRs hold raw bit patterns rather than true IEEE-754
// values (isa.rv32iCatalog.isqrt is an integer-domain stand-in), so the
// matrix is chosen to exercise zero, signed extremes, and an alternating
// sentinel pattern rather than genuine float corner cases.
var floatMatrix = []int64{0, 1, -1, 0x7FFFFFFF, -0x7FFFFFFF, 0x5A5A5A5A}

// planned is embedded by every stress-float sequence: it lazily builds a
// flat instruction plan on first use (once claim and ctx are both
// available) and then drains it one item per Next call.
type planned struct {
	plan []gendata.GenData
	idx  int
}

func (p *planned) next() (gendata.GenData, bool, error) {
	if p.idx >= len(p.plan) {
		return gendata.GenData{}, false, nil
	}
	it := p.plan[p.idx]
	p.idx++
	return it, true, nil
}

// StressFloatSingleSource emits an FPR-setup prologue followed by float
// instructions single-source stressed across the value matrix (spec 4.5).
type StressFloatSingleSource struct {
	claim *resource.Claim
	planned
	built bool
}

func NewStressFloatSingleSource() *StressFloatSingleSource { return &StressFloatSingleSource{} }

func (s *StressFloatSingleSource) Name() string { return "stress_float_single_source" }

func (s *StressFloatSingleSource) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{
		resource.AnySlot(resource.FPR, 1),
		resource.AnySlot(resource.GPR, 1),
	}}
}

func (s *StressFloatSingleSource) SetClaim(c *resource.Claim) { s.claim = c }

func (s *StressFloatSingleSource) Next(ctx *Context) (gendata.GenData, bool, error) {
	if !s.built {
		fr, _ := regOf(s.claim, resource.FPR, 0)
		scratch, _ := regOf(s.claim, resource.GPR, 0)
		for _, v := range floatMatrix {
			s.plan = append(s.plan, materializeAddr(regNum(scratch), v)...)
			s.plan = append(s.plan, gendata.Instr("fmv.w.x", []int64{regNum(fr), regNum(scratch)}))
			s.plan = append(s.plan, gendata.Instr("fsqrt.s", []int64{regNum(fr), regNum(fr)}))
		}
		s.built = true
	}
	return s.next()
}

// StressFloatMultiSource emits multi-source cartesian samples over the
// value matrix (spec 4.5).
type StressFloatMultiSource struct {
	claim *resource.Claim
	planned
	built bool
}

func NewStressFloatMultiSource() *StressFloatMultiSource { return &StressFloatMultiSource{} }

func (s *StressFloatMultiSource) Name() string { return "stress_float_multi_source" }

func (s *StressFloatMultiSource) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{
		resource.AnySlot(resource.FPR, 3),
		resource.AnySlot(resource.GPR, 1),
	}}
}

func (s *StressFloatMultiSource) SetClaim(c *resource.Claim) { s.claim = c }

func (s *StressFloatMultiSource) Next(ctx *Context) (gendata.GenData, bool, error) {
	if !s.built {
		dst, _ := regOf(s.claim, resource.FPR, 0)
		a, _ := regOf(s.claim, resource.FPR, 1)
		b, _ := regOf(s.claim, resource.FPR, 2)
		scratch, _ := regOf(s.claim, resource.GPR, 0)
		ops := []string{"fadd.s", "fsub.s", "fmul.s"}
		for i, va := range floatMatrix {
			for j, vb := range floatMatrix {
				if i == j {
					continue // cartesian over distinct samples only
				}
				s.plan = append(s.plan, materializeAddr(regNum(scratch), va)...)
				s.plan = append(s.plan, gendata.Instr("fmv.w.x", []int64{regNum(a), regNum(scratch)}))
				s.plan = append(s.plan, materializeAddr(regNum(scratch), vb)...)
				s.plan = append(s.plan, gendata.Instr("fmv.w.x", []int64{regNum(b), regNum(scratch)}))
				op := ops[(i+j)%len(ops)]
				s.plan = append(s.plan, gendata.Instr(op, []int64{regNum(dst), regNum(a), regNum(b)}))
			}
		}
		s.built = true
	}
	return s.next()
}

// FDivFSqrtSweep sweeps fdiv.s and fsqrt.s across the value matrix
// (spec 4.5 "fdiv / fsqrt sweeps").
type FDivFSqrtSweep struct {
	claim *resource.Claim
	planned
	built bool
}

func NewFDivFSqrtSweep() *FDivFSqrtSweep { return &FDivFSqrtSweep{} }

func (s *FDivFSqrtSweep) Name() string { return "fdiv_fsqrt_sweep" }

func (s *FDivFSqrtSweep) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{
		resource.AnySlot(resource.FPR, 2),
		resource.AnySlot(resource.GPR, 1),
	}}
}

func (s *FDivFSqrtSweep) SetClaim(c *resource.Claim) { s.claim = c }

func (s *FDivFSqrtSweep) Next(ctx *Context) (gendata.GenData, bool, error) {
	if !s.built {
		num, _ := regOf(s.claim, resource.FPR, 0)
		den, _ := regOf(s.claim, resource.FPR, 1)
		scratch, _ := regOf(s.claim, resource.GPR, 0)
		for _, v := range floatMatrix {
			if v == 0 {
				continue // division sweep skips the divide-by-zero case by design
			}
			s.plan = append(s.plan, materializeAddr(regNum(scratch), 1<<20)...)
			s.plan = append(s.plan, gendata.Instr("fmv.w.x", []int64{regNum(num), regNum(scratch)}))
			s.plan = append(s.plan, materializeAddr(regNum(scratch), v)...)
			s.plan = append(s.plan, gendata.Instr("fmv.w.x", []int64{regNum(den), regNum(scratch)}))
			s.plan = append(s.plan, gendata.Instr("fdiv.s", []int64{regNum(num), regNum(num), regNum(den)}))
			s.plan = append(s.plan, gendata.Instr("fsqrt.s", []int64{regNum(num), regNum(num)}))
		}
		s.built = true
	}
	return s.next()
}
