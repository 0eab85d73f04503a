// Package execmodel is the purely functional interpreter over
// ExecutionState and the Memory Store described in spec 4.4. It corresponds
// to the fetch/decode/execute cycle in gmofishsauce-wut4/emul/main.go's
// runEmulator and emul/cpu.go's CPU struct, generalized from a fixed
// register file over a page-translated address space to RISC-V's GPR/FPR
// files over the flat, bank-checked memstore.Store.
package execmodel

import (
	"errors"
	"fmt"
	"io"

	"github.com/jberkowitz/tibbar/internal/isa"
	"github.com/jberkowitz/tibbar/internal/memstore"
)

// ErrFetchMiss is returned when Step is asked to fetch an address that
// holds no placed instruction (spec 4.4: "must be placed; otherwise
// Fault(FetchMiss)").
var ErrFetchMiss = errors.New("execmodel: fetch miss")

// State is the externally-visible execution state (spec 3 ExecutionState).
// GPR[0] is conceptually immutable zero; the model never writes it because
// isa.Catalog.Step already refuses to.
type State struct {
	PC  memstore.Address
	GPR [32]uint64
	FPR [32]uint64
	CSR map[string]uint64
}

// Trace is an optional pre/post-instruction hook, generalized from
// gmofishsauce-wut4/emul/trace.go's Tracer so a run can be inspected
// instruction-by-instruction the way the teacher's emulator can.
type Trace interface {
	PreStep(st State)
	PostStep(st State, form string, operands []int64)
}

// WriterTrace is the default Trace, writing one line per instruction to w.
type WriterTrace struct{ W io.Writer }

func (t WriterTrace) PreStep(State) {}
func (t WriterTrace) PostStep(st State, form string, operands []int64) {
	fmt.Fprintf(t.W, "pc=0x%08x %s %v -> pc=0x%08x\n", st.PC, form, operands, st.PC)
}

// Model is the engine's functional interpreter. It owns no mutable cross-
// goroutine state (spec 5: single-threaded and cooperative) and exposes
// read-only views to sequences.
type Model struct {
	State        State
	Store        *memstore.Store
	Catalog      isa.Catalog
	TrapHandler  memstore.Address
	Trace        Trace
	TrapsRaised  int
}

// New builds a model with pc = boot (spec 4.7 step 1).
func New(store *memstore.Store, catalog isa.Catalog, boot memstore.Address, trapHandler memstore.Address) *Model {
	return &Model{
		State:       State{PC: boot, CSR: map[string]uint64{}},
		Store:       store,
		Catalog:     catalog,
		TrapHandler: trapHandler,
	}
}

// memAdapter narrows memstore.Store down to isa.MemIO for one Step call.
type memAdapter struct{ s *memstore.Store }

func (m memAdapter) Read(addr uint64, n int) ([]byte, error) {
	return m.s.Read(memstore.Address(addr), memstore.Address(n))
}

func (m memAdapter) Write(addr uint64, data []byte) error {
	// Stores in a directed-random generator run land on a pre-placed
	// DataBlob: overwrite in place rather than calling PlaceData again,
	// since the address is already occupied by the Store sequence's own
	// blob.
	return m.s.OverwriteData(memstore.Address(addr), data)
}

// Step fetches the instruction at State.PC, executes it via the catalog,
// and applies the resulting state delta. A Trap sets PC to the configured
// trap handler address rather than returning an error: traps are routed,
// not failures (spec 7).
func (m *Model) Step() error {
	cell, ok := m.Store.Get(m.State.PC)
	if !ok || cell.Kind != memstore.CellInstruction {
		return fmt.Errorf("%w: pc=0x%x", ErrFetchMiss, m.State.PC)
	}
	form, ok := m.Catalog.Lookup(cell.Form)
	if !ok {
		return fmt.Errorf("execmodel: unknown form %q at pc=0x%x", cell.Form, m.State.PC)
	}

	isaState := isa.State{PC: uint64(m.State.PC), GPR: m.State.GPR, FPR: m.State.FPR, CSR: m.State.CSR}

	if m.Trace != nil {
		m.Trace.PreStep(m.State)
	}

	next, trap, err := m.Catalog.Step(form, cell.Operands, isaState, memAdapter{m.Store})
	if err != nil {
		return err
	}
	if trap != nil {
		m.TrapsRaised++
		m.State.PC = m.TrapHandler
		if m.Trace != nil {
			m.Trace.PostStep(m.State, "trap:"+trap.Cause, nil)
		}
		return nil
	}

	m.State.PC = memstore.Address(next.PC)
	m.State.GPR = next.GPR
	m.State.FPR = next.FPR
	if next.CSR != nil {
		m.State.CSR = next.CSR
	}

	if m.Trace != nil {
		m.Trace.PostStep(m.State, form.Name, cell.Operands)
	}
	return nil
}

// GPRInitialized reports whether GPR n has ever been written away from its
// reset value of zero — used by sequences that need to know, for example,
// whether a base register already holds a usable address (spec 4.4: "used
// by sequences that need to know ... whether a GPR has been initialized").
// Zero is ambiguous with "never written"; sequences that need a hard
// guarantee should track it themselves via the reservation claim instead.
func (st State) GPRInitialized(n int) bool {
	return st.GPR[n] != 0
}
