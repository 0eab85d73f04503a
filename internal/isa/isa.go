// Package isa defines the ISA Catalog interface consumed by the rest of the
// engine (spec 4.1) and a small concrete RV32I-flavored catalog so the
// engine has something to generate against. Selection of which concrete
// instruction forms exist and their bit-level encodings is intentionally
// abstracted behind this interface — swapping in a richer catalog (RV64,
// compressed forms, floating point extensions beyond the stress subset
// below) never touches the engine, sequences, or memory store.
//
// The instruction table shape and the mnemonic-keyed lookup are grounded on
// gmofishsauce-wut4/asm's instrs.go/codegen.go InstrDef tables, generalized
// from the WUT-4's fixed 16-bit word formats to RISC-V's 32-bit R/I/S/B/U/J
// formats.
package isa

import (
	"fmt"

	"github.com/jberkowitz/tibbar/internal/resource"
)

// OperandClass names what kind of operand a form expects.
type OperandClass int

const (
	OperandGPR OperandClass = iota
	OperandFPR
	OperandCSR
	OperandImm
	OperandBranchOffset
	OperandMemOffset
)

// Form is one instruction mnemonic's shape.
type Form struct {
	Name       string
	Operands   []OperandClass
	ImmBits    int // width of the last immediate-shaped operand, if any
	MemSize    int // bytes touched, for load/store forms
	IsLoad     bool
	IsStore    bool
	IsBranch   bool
	IsJump     bool
	IsCSR      bool
	Privileged bool
	SideEffect bool
}

// Trap is a modeled architectural fault (spec 7: not an error, routed to a
// handler).
type Trap struct {
	Cause string
	PC    uint64
	Data  uint64
}

// State is the minimal execution state the catalog needs to step a form.
// It mirrors execmodel.State structurally so isa never imports execmodel
// (avoiding an import cycle): the two packages agree on shape, not identity.
type State struct {
	PC  uint64
	GPR [32]uint64
	FPR [32]uint64
	CSR map[string]uint64
}

// MemIO is the narrow memory view the catalog needs to step load/store
// forms. The Execution Model supplies an adapter over the Memory Store;
// the catalog never sees banks, permissions, or placement directly.
type MemIO interface {
	Read(addr uint64, n int) ([]byte, error)
	Write(addr uint64, data []byte) error
}

// Catalog is the consumed interface (spec 4.1). It must be deterministic
// and pure: same (form, operands, state, mem contents) always produces the
// same (encoding | new state | trap).
type Catalog interface {
	Forms() []Form
	Lookup(name string) (Form, bool)
	Encode(form Form, operands []int64) ([]byte, error)
	Writes(form Form, operands []int64) []resource.Resource
	Step(form Form, operands []int64, st State, mem MemIO) (State, *Trap, error)
	InstrLen(form Form) int
	Align() uint64 // instruction alignment: 4 (base ISA) unless compressed forms are enabled
}

// ErrUnknownForm is returned by Encode/Step for a form the catalog can't
// handle.
type ErrUnknownForm struct{ Name string }

func (e ErrUnknownForm) Error() string { return fmt.Sprintf("isa: unknown form %q", e.Name) }
