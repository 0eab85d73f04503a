package sequence

import (
	"fmt"

	"github.com/jberkowitz/tibbar/internal/gendata"
	"github.com/jberkowitz/tibbar/internal/memstore"
	"github.com/jberkowitz/tibbar/internal/resource"
)

// mtvecCSR is the (simplified) trap-vector CSR number this catalog's
// csrrw form addresses, matching RISC-V's real mtvec encoding (0x305) so a
// disassembly reads naturally even though the emulator doesn't model
// privilege levels.
const mtvecCSR = 0x305

const defaultStackSize = 256

// DefaultProgramStart is the engine's default start_sequence (spec 4.7): it
// points the trap vector at the run's trap handler, stands up a small stack
// region and initializes the stack pointer to its top, and leaves the exit
// address out of the way for DefaultProgramEnd to pick up later.
type DefaultProgramStart struct {
	claim     *resource.Claim
	stackBlob gendata.GenData
	pending   []gendata.GenData
	step      int // 0=need stack blob, 1=draining sp load, 2=draining trap handler load, 3=csrrw, 4=done
}

func NewDefaultProgramStart() *DefaultProgramStart { return &DefaultProgramStart{} }

func (s *DefaultProgramStart) Name() string { return "default_program_start" }

func (s *DefaultProgramStart) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{
		resource.ConcreteItem(resource.Reg(resource.GPR, 2)), // sp
		resource.AnySlot(resource.GPR, 1),                    // scratch
		resource.ConcreteItem(resource.Csr(fmt.Sprintf("%d", mtvecCSR))),
	}}
}

func (s *DefaultProgramStart) SetClaim(c *resource.Claim) { s.claim = c }

func (s *DefaultProgramStart) Next(ctx *Context) (gendata.GenData, bool, error) {
	sp := resource.Reg(resource.GPR, 2)
	scratch, _ := regOf(s.claim, resource.GPR, 0)
	if scratch == sp {
		scratch, _ = regOf(s.claim, resource.GPR, 1)
	}
	switch s.step {
	case 0:
		s.stackBlob = gendata.DataBlob(make([]byte, defaultStackSize), 4, "stack")
		s.step = 1
		return s.stackBlob, true, nil
	case 1:
		top := int64(*s.stackBlob.DataAddr) + defaultStackSize
		s.pending = materializeAddr(regNum(sp), top)
		s.step = 2
		return s.popPending()
	case 2:
		if len(s.pending) > 0 {
			return s.popPending()
		}
		s.pending = materializeAddr(regNum(scratch), int64(ctx.TrapHandler))
		s.step = 3
		return s.popPending()
	case 3:
		if len(s.pending) > 0 {
			return s.popPending()
		}
		s.step = 4
		return gendata.Instr("csrrw", []int64{0, mtvecCSR, regNum(scratch)}), true, nil
	default:
		return gendata.GenData{}, false, nil
	}
}

func (s *DefaultProgramStart) popPending() (gendata.GenData, bool, error) {
	it := s.pending[0]
	s.pending = s.pending[1:]
	return it, true, nil
}

// DefaultProgramEnd is the engine's default end_sequence (spec 4.7): it
// loads the run's exit address into a scratch register, jumps to it
// indirectly, and follows with a self-branch so execution still stays put
// if the exit region turns out not to halt the model.
type DefaultProgramEnd struct {
	claim   *resource.Claim
	pending []gendata.GenData
	step    int // 0=draining exit-addr load, 1=jalr, 2=self-branch, 3=done
}

func NewDefaultProgramEnd() *DefaultProgramEnd { return &DefaultProgramEnd{} }

func (s *DefaultProgramEnd) Name() string { return "default_program_end" }

func (s *DefaultProgramEnd) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, 1)}}
}

func (s *DefaultProgramEnd) SetClaim(c *resource.Claim) { s.claim = c }

func (s *DefaultProgramEnd) Next(ctx *Context) (gendata.GenData, bool, error) {
	scratch, _ := regOf(s.claim, resource.GPR, 0)
	switch s.step {
	case 0:
		s.pending = materializeAddr(regNum(scratch), int64(ctx.ExitAddr))
		s.step = 1
		it := s.pending[0]
		s.pending = s.pending[1:]
		return it, true, nil
	case 1:
		if len(s.pending) > 0 {
			it := s.pending[0]
			s.pending = s.pending[1:]
			return it, true, nil
		}
		s.step = 2
		return gendata.Instr("jalr", []int64{0, regNum(scratch), 0}), true, nil
	case 2:
		s.step = 3
		return gendata.Instr("beq", []int64{0, 0, 0}), true, nil
	default:
		return gendata.GenData{}, false, nil
	}
}

// DefaultRelocate is the engine's default relocate_sequence (spec 4.7): when
// the current code region fills, it emits an indirect jump to a freshly
// allocated code region the engine has already chosen and reserved.
type DefaultRelocate struct {
	Target memstore.Address

	claim   *resource.Claim
	pending []gendata.GenData
	step    int // 0=draining target load, 1=jalr, 2=done
}

func NewDefaultRelocate(target memstore.Address) *DefaultRelocate {
	return &DefaultRelocate{Target: target}
}

func (s *DefaultRelocate) Name() string { return "default_relocate" }

func (s *DefaultRelocate) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, 1)}}
}

func (s *DefaultRelocate) SetClaim(c *resource.Claim) { s.claim = c }

func (s *DefaultRelocate) Next(ctx *Context) (gendata.GenData, bool, error) {
	scratch, _ := regOf(s.claim, resource.GPR, 0)
	switch s.step {
	case 0:
		s.pending = materializeAddr(regNum(scratch), int64(s.Target))
		s.step = 1
		it := s.pending[0]
		s.pending = s.pending[1:]
		return it, true, nil
	case 1:
		if len(s.pending) > 0 {
			it := s.pending[0]
			s.pending = s.pending[1:]
			return it, true, nil
		}
		s.step = 2
		return gendata.Instr("jalr", []int64{0, regNum(scratch), 0}), true, nil
	default:
		return gendata.GenData{}, false, nil
	}
}
