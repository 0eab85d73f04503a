package sequence

import (
	"encoding/binary"

	"github.com/jberkowitz/tibbar/internal/gendata"
	"github.com/jberkowitz/tibbar/internal/resource"
)

// materializeAddr expands an absolute value into the lui+addi pair a real
// assembler's "load immediate" pseudo-op would emit (or a single addi when
// it fits in 12 signed bits), mirroring how gmofishsauce-wut4/asm/codegen.go
// expands its own pseudo-instructions (ldi, mv, ...) into base forms.
func materializeAddr(rd int64, val int64) []gendata.GenData {
	if val >= -2048 && val < 2048 {
		return []gendata.GenData{gendata.Instr("addi", []int64{rd, 0, val})}
	}
	upper := (val + 0x800) >> 12
	lower := val - (upper << 12)
	return []gendata.GenData{
		gendata.Instr("lui", []int64{rd, upper & 0xfffff}),
		gendata.Instr("addi", []int64{rd, rd, lower}),
	}
}

// Load emits a load whose base register is initialized to the address of a
// previously allocated data blob (spec 4.5 Load).
type Load struct {
	claim   *resource.Claim
	blob    gendata.GenData
	pending []gendata.GenData
	step    int // 0=need blob, 1=draining pending addr-load, 2=need lw, 3=done
}

func NewLoad() *Load { return &Load{} }

func (s *Load) Name() string { return "load" }

func (s *Load) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, 2)}}
}

func (s *Load) SetClaim(c *resource.Claim) { s.claim = c }

func (s *Load) Next(ctx *Context) (gendata.GenData, bool, error) {
	base, _ := regOf(s.claim, resource.GPR, 0)
	dest, _ := regOf(s.claim, resource.GPR, 1)
	switch s.step {
	case 0:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(ctx.RNG.Uint64()))
		s.blob = gendata.DataBlob(buf, 4, "load-source")
		s.step = 1
		return s.blob, true, nil
	case 1:
		s.pending = materializeAddr(regNum(base), int64(*s.blob.DataAddr))
		s.step = 2
		return s.popPending()
	case 2:
		if len(s.pending) > 0 {
			return s.popPending()
		}
		s.step = 3
		return gendata.Instr("lw", []int64{regNum(dest), regNum(base), 0}), true, nil
	default:
		return gendata.GenData{}, false, nil
	}
}

func (s *Load) popPending() (gendata.GenData, bool, error) {
	item := s.pending[0]
	s.pending = s.pending[1:]
	return item, true, nil
}

// Store emits a preceding LoadGPR of the value, a base-register load of a
// freshly allocated data blob's address, then a store (spec 4.5 Store).
type Store struct {
	claim   *resource.Claim
	blob    gendata.GenData
	pending []gendata.GenData
	value   int64
	step    int // 0=load value imm, 1=need blob, 2=draining addr-load, 3=need sw, 4=done
}

func NewStore() *Store { return &Store{} }

func (s *Store) Name() string { return "store" }

func (s *Store) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, 2)}}
}

func (s *Store) SetClaim(c *resource.Claim) { s.claim = c }

func (s *Store) Next(ctx *Context) (gendata.GenData, bool, error) {
	base, _ := regOf(s.claim, resource.GPR, 0)
	value, _ := regOf(s.claim, resource.GPR, 1)
	switch s.step {
	case 0:
		s.value = ctx.RNG.Range(-2048, 2048)
		s.pending = materializeAddr(regNum(value), s.value)
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
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(s.value))
		s.blob = gendata.DataBlob(buf, 4, "store-target")
		s.step = 2
		return s.blob, true, nil
	case 2:
		s.pending = materializeAddr(regNum(base), int64(*s.blob.DataAddr))
		s.step = 3
		it := s.pending[0]
		s.pending = s.pending[1:]
		return it, true, nil
	case 3:
		if len(s.pending) > 0 {
			it := s.pending[0]
			s.pending = s.pending[1:]
			return it, true, nil
		}
		s.step = 4
		return gendata.Instr("sw", []int64{regNum(value), regNum(base), 0}), true, nil
	default:
		return gendata.GenData{}, false, nil
	}
}

// LoadException emits a load with base GPR 0 and a non-zero offset selected
// to fault against an unmapped region (spec 4.5 LoadException).
type LoadException struct {
	claim *resource.Claim
	done  bool
}

func NewLoadException() *LoadException { return &LoadException{} }

func (s *LoadException) Name() string { return "load_exception" }

func (s *LoadException) ResourceRequests() resource.ClaimSpec {
	return resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, 1)}}
}

func (s *LoadException) SetClaim(c *resource.Claim) { s.claim = c }

func (s *LoadException) Next(ctx *Context) (gendata.GenData, bool, error) {
	if s.done {
		return gendata.GenData{}, false, nil
	}
	s.done = true
	dest, _ := regOf(s.claim, resource.GPR, 0)
	// GPR 0 always holds zero; the largest positive 12-bit offset (lw's
	// immediate field) still lands well below any bank base in the
	// default memory map, which starts at 0x80000000.
	const faultOffset = 0x7FF
	return gendata.Instr("lw", []int64{regNum(dest), 0, faultOffset}), true, nil
}
