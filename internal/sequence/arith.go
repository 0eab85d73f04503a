package sequence

import (
	"github.com/jberkowitz/tibbar/internal/gendata"
	"github.com/jberkowitz/tibbar/internal/resource"
)

// safeForms are base-ISA arithmetic/logic forms that are neither loads,
// stores, branches, CSR ops, nor privileged (spec 4.5 RandomSafeInstrs).
var safeForms = []string{"add", "sub", "xor", "or", "and", "sll", "srl", "sra", "slt", "sltu"}
var safeImmForms = []string{"addi", "xori", "ori", "andi", "slti", "sltiu"}

// RandomSafeInstrs yields base-ISA arithmetic/logic instructions operating
// on GPRs drawn from the claim, grounded on the XOP/base-instruction
// emission shapes of gmofishsauce-wut4/asm/codegen.go.
type RandomSafeInstrs struct {
	Count int // how many instructions to yield; 0 yields none
	claim *resource.Claim
	done  int
}

func NewRandomSafeInstrs(count int) *RandomSafeInstrs { return &RandomSafeInstrs{Count: count} }

func (s *RandomSafeInstrs) Name() string { return "random_safe_instrs" }

func (s *RandomSafeInstrs) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, 3)}}
}

func (s *RandomSafeInstrs) SetClaim(c *resource.Claim) { s.claim = c }

func (s *RandomSafeInstrs) Next(ctx *Context) (gendata.GenData, bool, error) {
	if s.done >= s.Count {
		return gendata.GenData{}, false, nil
	}
	rd, _ := regOf(s.claim, resource.GPR, 0)
	rs1, _ := regOf(s.claim, resource.GPR, 1)
	rs2, _ := regOf(s.claim, resource.GPR, 2)
	s.done++

	if ctx.RNG.Bool() {
		form := safeForms[ctx.RNG.Intn(len(safeForms))]
		return gendata.Instr(form, []int64{regNum(rd), regNum(rs1), regNum(rs2)}), true, nil
	}
	form := safeImmForms[ctx.RNG.Intn(len(safeImmForms))]
	imm := ctx.RNG.Range(-2048, 2048)
	return gendata.Instr(form, []int64{regNum(rd), regNum(rs1), imm}), true, nil
}

// Hazards emits a pair (writer, reader) such that the reader's source GPR
// equals the writer's destination GPR (spec 4.5 Hazards).
type Hazards struct {
	claim *resource.Claim
	step  int
}

func NewHazards() *Hazards { return &Hazards{} }

func (s *Hazards) Name() string { return "hazards" }

func (s *Hazards) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, 3)}}
}

func (s *Hazards) SetClaim(c *resource.Claim) { s.claim = c }

func (s *Hazards) Next(ctx *Context) (gendata.GenData, bool, error) {
	if s.step >= 2 {
		return gendata.GenData{}, false, nil
	}
	dst, _ := regOf(s.claim, resource.GPR, 0)
	src1, _ := regOf(s.claim, resource.GPR, 1)
	src2, _ := regOf(s.claim, resource.GPR, 2)
	s.step++
	if s.step == 1 {
		// writer: dst = src1 + src2
		return gendata.Instr("add", []int64{regNum(dst), regNum(src1), regNum(src2)}), true, nil
	}
	// reader: src1 = dst ^ src2 -- src1's value now depends on the
	// writer's destination register, satisfying the hazard.
	return gendata.Instr("xor", []int64{regNum(src1), regNum(dst), regNum(src2)}), true, nil
}
