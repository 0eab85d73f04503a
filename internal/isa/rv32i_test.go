package isa

import (
	"encoding/binary"
	"testing"
)

type fakeMem struct {
	read  func(addr uint64, n int) ([]byte, error)
	write func(addr uint64, data []byte) error
}

func (m fakeMem) Read(addr uint64, n int) ([]byte, error)  { return m.read(addr, n) }
func (m fakeMem) Write(addr uint64, data []byte) error     { return m.write(addr, data) }

func TestEncodeAddProducesExpectedWord(t *testing.T) {
	c := NewRV32I()
	form, ok := c.Lookup("add")
	if !ok {
		t.Fatalf("add form not found")
	}
	// add x1, x2, x3
	bytes, err := c.Encode(form, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	word := binary.LittleEndian.Uint32(bytes)
	// opcode 0x33, funct3 0, rd=1, rs1=2, rs2=3, funct7=0
	want := uint32(0x33) | (1 << 7) | (2 << 15) | (3 << 20)
	if word != want {
		t.Fatalf("encoded word = 0x%08x, want 0x%08x", word, want)
	}
}

func TestStepAddWritesDestinationRegister(t *testing.T) {
	c := NewRV32I()
	form, _ := c.Lookup("add")
	st := State{}
	st.GPR[2] = 10
	st.GPR[3] = 5
	next, trap, err := c.Step(form, []int64{1, 2, 3}, st, nil)
	if err != nil || trap != nil {
		t.Fatalf("unexpected trap/err: %v %v", trap, err)
	}
	if next.GPR[1] != 15 {
		t.Fatalf("GPR[1] = %d, want 15", next.GPR[1])
	}
	if next.PC != 4 {
		t.Fatalf("PC = %d, want 4", next.PC)
	}
}

func TestStepNeverWritesGPRZero(t *testing.T) {
	c := NewRV32I()
	form, _ := c.Lookup("addi")
	st := State{}
	next, _, err := c.Step(form, []int64{0, 0, 99}, st, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if next.GPR[0] != 0 {
		t.Fatalf("GPR[0] must remain zero, got %d", next.GPR[0])
	}
}

func TestStepLoadFaultReturnsTrap(t *testing.T) {
	c := NewRV32I()
	form, _ := c.Lookup("lw")
	st := State{}
	mem := fakeMem{read: func(addr uint64, n int) ([]byte, error) {
		return nil, ErrUnknownForm{Name: "unmapped"}
	}}
	_, trap, err := c.Step(form, []int64{1, 0, 0x7ff}, st, mem)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if trap == nil {
		t.Fatalf("expected a trap for a faulting load")
	}
}

func TestStepBranchTakenAdjustsPC(t *testing.T) {
	c := NewRV32I()
	form, _ := c.Lookup("beq")
	st := State{}
	st.PC = 0x80000100
	st.GPR[1] = 7
	st.GPR[2] = 7
	next, trap, err := c.Step(form, []int64{1, 2, 16}, st, nil)
	if err != nil || trap != nil {
		t.Fatalf("unexpected trap/err: %v %v", trap, err)
	}
	if next.PC != 0x80000110 {
		t.Fatalf("PC = 0x%x, want 0x80000110", next.PC)
	}
}

func TestWritesReportsDestinationForOrdinaryForms(t *testing.T) {
	c := NewRV32I()
	form, _ := c.Lookup("add")
	writes := c.Writes(form, []int64{5, 1, 2})
	if len(writes) != 1 || writes[0].ID != "5" {
		t.Fatalf("unexpected writes: %+v", writes)
	}
}

func TestWritesReportsNilForStoresAndBranches(t *testing.T) {
	c := NewRV32I()
	form, _ := c.Lookup("sw")
	if got := c.Writes(form, []int64{1, 2, 0}); got != nil {
		t.Fatalf("expected no writes for sw, got %+v", got)
	}
}
