// Package engine implements the Generator/Engine top-level loop (spec 4.7):
// it interleaves the main funnel, the Memory Store, and the Execution
// Model, choosing boot/exit addresses, draining the prologue and epilogue
// sequences, and placing every item the body loop produces until the model
// reaches the exit region. Grounded on the run loop in
// gmofishsauce-wut4/emul/main.go's runEmulator, generalized from "load one
// program and execute it" to "generate one program while executing it".
package engine

import (
	"fmt"

	"github.com/jberkowitz/tibbar/internal/execmodel"
	"github.com/jberkowitz/tibbar/internal/gendata"
	"github.com/jberkowitz/tibbar/internal/isa"
	"github.com/jberkowitz/tibbar/internal/memstore"
	"github.com/jberkowitz/tibbar/internal/prng"
	"github.com/jberkowitz/tibbar/internal/resource"
	"github.com/jberkowitz/tibbar/internal/sequence"
)

const (
	defaultBootReserve = 64
	defaultExitReserve = 64
	defaultMaxStalls   = 4096
)

// Limits bounds total generated work (spec 4.7: "a generator honors two
// limits, max_instructions and max_code_bytes; exceeding either causes an
// orderly drive-to-exit").
type Limits struct {
	MaxInstructions int
	MaxCodeBytes    memstore.Address

	// RegionSize is a soft splice boundary within the single primary code
	// bank this Store models: once placing an instruction would cross a
	// RegionSize-aligned boundary, the engine splices in the relocate
	// sequence instead of placing it directly (spec 4.7 "when the current
	// region fills"). Zero means "one region spanning the whole bank",
	// i.e. relocate never fires except at the bank's hard end.
	RegionSize memstore.Address

	// MaxStallAttempts bounds how many consecutive non-exhausted, empty
	// rounds (every live RoundRobinFunnel child transiently unreservable)
	// the body loop tolerates before forcing a drive-to-exit. This is not
	// itself a spec-named limit; it is this implementation's backstop
	// against a misconfigured generator that can never make progress.
	MaxStallAttempts int
}

func (l Limits) normalized() Limits {
	out := l
	if out.MaxInstructions <= 0 {
		out.MaxInstructions = 1 << 20
	}
	if out.MaxCodeBytes == 0 {
		out.MaxCodeBytes = 1 << 24
	}
	if out.MaxStallAttempts <= 0 {
		out.MaxStallAttempts = defaultMaxStalls
	}
	return out
}

// Config is everything one generation run needs.
type Config struct {
	Store   *memstore.Store
	Catalog isa.Catalog
	Seed    int64
	Limits  Limits

	// BootOverride fixes the boot address instead of choosing one at
	// random (spec 4.7 step 1: "respecting any configured offset").
	BootOverride *memstore.Address

	NewStartSequence func() sequence.Sequence
	NewEndSequence   func() sequence.Sequence
	NewMainFunnel    func(reserver *resource.Space) sequence.Sequence

	Trace execmodel.Trace
}

// Result is everything the emitter (and test harnesses) need after a run.
type Result struct {
	Store              *memstore.Store
	Model              *execmodel.Model
	BootAddr           memstore.Address
	ExitAddr           memstore.Address
	TrapHandler        memstore.Address
	InstructionsPlaced int
	CodeBytesPlaced    memstore.Address
	TrapsRaised        int
}

// doneChecker is implemented by funnel.SimpleFunnel/RoundRobinFunnel to let
// the engine tell "nothing to yield this round" apart from "exhausted".
// A main funnel that doesn't implement it (a bare Sequence) is treated as
// exhausted the first time it reports ok=false.
type doneChecker interface{ Done() bool }

func align4(addr int64) memstore.Address {
	if addr < 0 {
		addr = 0
	}
	rem := addr % 4
	if rem != 0 {
		addr += 4 - rem
	}
	return memstore.Address(addr)
}

// Run executes one full generation: setup, prologue, body, epilogue. It
// returns the populated Store (ready for the emitter) plus run metadata.
func Run(cfg Config) (*Result, error) {
	limits := cfg.Limits.normalized()
	store := cfg.Store
	bank := store.CodeBank()
	if base, ok := store.DataRegionBase(); ok && !store.DataRegionIsDistinctBank() {
		// Unified bank: code stays below the data reserve at its top.
		bank.Size = base - bank.Base
	}

	root := prng.NewRoot(cfg.Seed)
	setupRNG := root.Sub("engine-setup")
	bodyRNG := root.Sub("body")

	bootAddr, err := chooseBoot(cfg.BootOverride, bank, setupRNG)
	if err != nil {
		return nil, err
	}
	exitAddr, err := chooseExit(bootAddr, bank, setupRNG)
	if err != nil {
		return nil, err
	}
	if err := store.Reserve(bootAddr); err != nil {
		return nil, fmt.Errorf("engine: reserving boot address: %w", err)
	}
	if err := store.Reserve(exitAddr); err != nil {
		return nil, fmt.Errorf("engine: reserving exit address: %w", err)
	}
	exitSize := memstore.Address(defaultExitReserve)
	store.SetBootExit(bootAddr, exitAddr, exitSize)

	// Traps route to the exit spin: the core does not specify a distinct
	// fault-recovery epilogue beyond "divert generation to a handler
	// region", and routing a trap straight to the termination address
	// means the body loop's existing exit-region check is also the
	// trap-handled-and-done check, with no separate machinery needed.
	trapHandler := exitAddr

	reserver := newRegisterSpace()
	model := execmodel.New(store, cfg.Catalog, bootAddr, trapHandler)
	model.Trace = cfg.Trace

	ctx := &sequence.Context{
		Model:       model,
		Store:       store,
		Catalog:     cfg.Catalog,
		RNG:         bodyRNG,
		TrapHandler: trapHandler,
		ExitAddr:    exitAddr,
		BootAddr:    bootAddr,
	}

	e := &runState{
		cfg:      cfg,
		limits:   limits,
		store:    store,
		bank:     bank,
		model:    model,
		reserver: reserver,
		ctx:      ctx,
	}

	if cfg.NewStartSequence != nil {
		if err := e.drainStandalone(cfg.NewStartSequence()); err != nil {
			return nil, fmt.Errorf("engine: prologue: %w", err)
		}
	}

	if cfg.NewMainFunnel != nil {
		e.mainFunnel = cfg.NewMainFunnel(reserver)
		if err := e.runBody(); err != nil {
			return nil, fmt.Errorf("engine: body: %w", err)
		}
	}

	if cfg.NewEndSequence != nil {
		if err := e.drainStandalone(cfg.NewEndSequence()); err != nil {
			return nil, fmt.Errorf("engine: epilogue: %w", err)
		}
	}

	return &Result{
		Store:              store,
		Model:              model,
		BootAddr:           bootAddr,
		ExitAddr:           exitAddr,
		TrapHandler:        trapHandler,
		InstructionsPlaced: e.instrCount,
		CodeBytesPlaced:    e.codeBytes,
		TrapsRaised:        model.TrapsRaised,
	}, nil
}

// runState carries the body loop's mutable bookkeeping.
type runState struct {
	cfg      Config
	limits   Limits
	store    *memstore.Store
	bank     memstore.Bank
	model    *execmodel.Model
	reserver *resource.Space
	ctx      *sequence.Context

	mainFunnel sequence.Sequence

	// pendingProducer overrides mainFunnel temporarily: a relocate splice
	// or a forced drive-to-exit, both one-shot sequences claimed directly
	// by the engine rather than through a funnel's reservation lifecycle.
	pendingProducer      sequence.Sequence
	pendingProducerClaim *resource.Claim
	stashedItem          *gendata.GenData
	driving              bool
	stalls               int

	instrCount int
	codeBytes  memstore.Address
}

// drainStandalone runs a single sequence to exhaustion, placing/stepping
// each item exactly like the body loop but without a funnel's reservation
// lifecycle: start_sequence and end_sequence are not funnel children, so
// the engine claims their resources itself (spec 4.7 steps 2 and 4).
func (e *runState) drainStandalone(seq sequence.Sequence) error {
	claim, err := e.reserver.Request(seq.ResourceRequests())
	if err != nil {
		return err
	}
	seq.SetClaim(claim)
	defer e.reserver.Release(claim)

	for {
		pc := e.model.State.PC
		if e.store.IsPlaced(pc) {
			if e.store.InExitRegion(pc) {
				// The end sequence jumps back to its own first instruction,
				// so inside the exit region it is laid out in address order
				// instead of being executed.
				cell, _ := e.store.Get(pc)
				e.model.State.PC = pc + memstore.Address(len(cell.Bytes))
				continue
			}
			if err := e.step(); err != nil {
				return err
			}
			continue
		}
		item, ok, err := seq.Next(e.ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := e.place(item); err != nil {
			return err
		}
	}
}

// runBody drives the main generation loop (spec 4.7 step 3) until pc enters
// the exit region.
func (e *runState) runBody() error {
	for {
		pc := e.model.State.PC
		if e.store.InExitRegion(pc) {
			return nil
		}
		if e.store.IsPlaced(pc) {
			if err := e.step(); err != nil {
				return err
			}
			if e.overLimits() {
				e.beginDriveToExit()
			}
			continue
		}

		item, ok, fromMain, transient, err := e.nextItem()
		if err != nil {
			return err
		}
		if !ok {
			if fromMain {
				if transient {
					// mainFunnel had nothing this round but isn't
					// exhausted: count it as a stall and retry.
					e.stalls++
					if e.stalls >= e.limits.MaxStallAttempts {
						e.beginDriveToExit()
					}
					continue
				}
				// mainFunnel is genuinely exhausted: drive to exit.
				e.beginDriveToExit()
				continue
			}
			// pendingProducer exhausted: release its claim and fall back
			// to mainFunnel (or to "still driving" if this WAS the drive
			// itself, in which case pc should already be in the exit
			// region and the next loop iteration returns above).
			e.reserver.Release(e.pendingProducerClaim)
			e.pendingProducer = nil
			e.pendingProducerClaim = nil
			e.driving = false
			continue
		}
		e.stalls = 0

		if item.Kind == gendata.KindInstr && fromMain {
			fits, err := e.fitsCurrentRegion(pc, item)
			if err != nil {
				return err
			}
			if !fits {
				if err := e.spliceRelocateOrDrive(pc, item); err != nil {
					return err
				}
				continue
			}
		}

		if err := e.place(item); err != nil {
			return err
		}
		if e.overLimits() {
			e.beginDriveToExit()
		}
	}
}

// nextItem pulls the next GenData from whichever producer is active right
// now: a stashed retry, a spliced pendingProducer, or the main funnel.
// fromMain tells the caller whether a false ok came from the main funnel
// (subject to the Done()/stall distinction) or from pendingProducer
// (always a hard exhaustion signal). transient is only meaningful when
// ok=false && fromMain: true means "nothing to yield this round, but not
// exhausted yet", false means true exhaustion.
func (e *runState) nextItem() (item gendata.GenData, ok bool, fromMain bool, transient bool, err error) {
	if e.stashedItem != nil {
		item = *e.stashedItem
		e.stashedItem = nil
		return item, true, true, false, nil
	}
	if e.pendingProducer != nil {
		item, ok, err = e.pendingProducer.Next(e.ctx)
		return item, ok, false, false, err
	}
	if e.mainFunnel == nil {
		return gendata.GenData{}, false, true, false, nil
	}
	item, ok, err = e.mainFunnel.Next(e.ctx)
	if err != nil {
		return gendata.GenData{}, false, true, false, err
	}
	if ok {
		return item, true, true, false, nil
	}
	if dc, is := e.mainFunnel.(doneChecker); is && !dc.Done() {
		return gendata.GenData{}, false, true, true, nil // transient, not exhausted
	}
	return gendata.GenData{}, false, true, false, nil
}

// fitsCurrentRegion checks the Instr item's encoded length against both the
// current soft region boundary and the hard bank end (spec 4.7: "verify pc
// lies in a code bank with sufficient remaining space for the instruction's
// encoded length").
func (e *runState) fitsCurrentRegion(pc memstore.Address, item gendata.GenData) (bool, error) {
	form, ok := e.cfg.Catalog.Lookup(item.Form)
	if !ok {
		return false, isa.ErrUnknownForm{Name: item.Form}
	}
	n := memstore.Address(e.cfg.Catalog.InstrLen(form))
	if pc+n > e.bank.End() {
		return false, nil
	}
	regionEnd := e.regionEndAfter(pc)
	return pc+n <= regionEnd, nil
}

func (e *runState) regionEndAfter(pc memstore.Address) memstore.Address {
	if e.limits.RegionSize == 0 {
		return e.bank.End()
	}
	offset := pc - e.bank.Base
	regionIdx := offset / e.limits.RegionSize
	end := e.bank.Base + (regionIdx+1)*e.limits.RegionSize
	if end > e.bank.End() {
		end = e.bank.End()
	}
	return end
}

// spliceRelocateOrDrive is invoked when an Instr from the main funnel
// doesn't fit the current region: it reserves a landing address in the
// next region and splices a relocate sequence ahead of the main funnel, or
// — if the bank is genuinely out of room — gives up on the item and drives
// to exit (spec 4.7 relocate + "exceeding max_code_bytes causes an orderly
// drive-to-exit", generalized to "no room left at all").
func (e *runState) spliceRelocateOrDrive(pc memstore.Address, item gendata.GenData) error {
	target := e.regionEndAfter(pc)
	if target >= e.bank.End() {
		e.beginDriveToExit() // hard out of space: drop the item, drive to exit
		return nil
	}
	target = align4(int64(target))
	if target <= pc {
		e.beginDriveToExit()
		return nil
	}
	relocate := sequence.NewDefaultRelocate(target)
	claim, err := e.reserver.Request(relocate.ResourceRequests())
	if err != nil {
		return err
	}
	if claim == nil {
		e.beginDriveToExit() // no scratch register free right now: drop and drive to exit
		return nil
	}
	relocate.SetClaim(claim)
	if err := e.store.Reserve(target); err != nil {
		e.reserver.Release(claim)
		return err
	}
	e.pendingProducer = relocate
	e.pendingProducerClaim = claim
	e.stashedItem = &item
	return nil
}

// beginDriveToExit splices in a forced end sequence so the body loop winds
// down toward the exit region (spec 4.7: "the engine must drive the stream
// toward exit: emit code that sets PC to the exit address").
func (e *runState) beginDriveToExit() {
	if e.driving || e.pendingProducer != nil {
		return
	}
	forced := sequence.NewDefaultProgramEnd()
	claim, err := e.reserver.Request(forced.ResourceRequests())
	if err != nil || claim == nil {
		// No scratch register available even for the forced exit: last
		// resort, teleport pc directly. This never emits invalid placed
		// code; it only short-circuits generation.
		e.model.State.PC = e.ctx.ExitAddr
		return
	}
	forced.SetClaim(claim)
	e.pendingProducer = forced
	e.pendingProducerClaim = claim
	e.driving = true
}

func (e *runState) overLimits() bool {
	return e.instrCount >= e.limits.MaxInstructions || e.codeBytes >= e.limits.MaxCodeBytes
}

// place resolves one GenData item against the Memory Store, per its Kind
// (spec 4.7 step 3's three cases).
func (e *runState) place(item gendata.GenData) error {
	switch item.Kind {
	case gendata.KindInstr:
		form, ok := e.cfg.Catalog.Lookup(item.Form)
		if !ok {
			return isa.ErrUnknownForm{Name: item.Form}
		}
		encoded, err := e.cfg.Catalog.Encode(form, item.Operands)
		if err != nil {
			return err
		}
		pc := e.model.State.PC
		if err := e.store.PlaceInstruction(pc, item.Form, item.Operands, encoded, nil); err != nil {
			return err
		}
		e.instrCount++
		e.codeBytes += memstore.Address(len(encoded))
		return nil
	case gendata.KindDataBlob:
		addr, err := e.store.AllocateData(memstore.Address(len(item.Bytes)), item.Alignment)
		if err != nil {
			return err
		}
		if err := e.store.PlaceData(addr, item.Bytes); err != nil {
			return err
		}
		*item.DataAddr = addr
		return nil
	case gendata.KindReserve:
		return e.store.Reserve(item.Target)
	default:
		return fmt.Errorf("engine: unknown GenData kind %d", item.Kind)
	}
}

// step advances the Execution Model exactly one instruction.
func (e *runState) step() error {
	return e.model.Step()
}

// chooseBoot picks the boot address (spec 4.7 step 1): the configured
// override if present, else random within the code bank, 4-aligned, with
// room for the start sequence, and never zero.
func chooseBoot(override *memstore.Address, bank memstore.Bank, rng *prng.Stream) (memstore.Address, error) {
	if override != nil {
		return *override, nil
	}
	lo := int64(bank.Base)
	if lo == 0 {
		lo = 4
	}
	hi := int64(bank.End()) - defaultBootReserve
	if hi <= lo {
		return memstore.Address(lo), nil
	}
	for attempt := 0; attempt < 64; attempt++ {
		addr := align4(rng.Range(lo, hi))
		if addr != 0 {
			return addr, nil
		}
	}
	return 0, fmt.Errorf("engine: could not choose a non-zero boot address")
}

// chooseExit picks the exit address (spec 4.7 step 1): random, 4-aligned,
// never zero, never overlapping the boot window, with room for the end
// sequence.
func chooseExit(boot memstore.Address, bank memstore.Bank, rng *prng.Stream) (memstore.Address, error) {
	lo := int64(bank.Base)
	if lo == 0 {
		lo = 4
	}
	hi := int64(bank.End()) - defaultExitReserve
	if hi <= lo {
		return 0, fmt.Errorf("engine: code bank too small to hold a separate exit region")
	}
	bootLo := int64(boot) - defaultExitReserve
	bootHi := int64(boot) + defaultBootReserve
	for attempt := 0; attempt < 256; attempt++ {
		addr := int64(align4(rng.Range(lo, hi)))
		if addr == 0 {
			continue
		}
		if addr >= bootLo && addr < bootHi {
			continue
		}
		return memstore.Address(addr), nil
	}
	return 0, fmt.Errorf("engine: could not choose an exit address not overlapping boot")
}

// newRegisterSpace builds the Reserver's universe for this catalog: GPRs
// 0-31 (0 forbidden, architecturally zero), FPRs 0-31, and the one CSR this
// implementation's catalog models (mtvec, used by DefaultProgramStart).
func newRegisterSpace() *resource.Space {
	universe := map[resource.Namespace][]resource.Resource{
		resource.GPR: make([]resource.Resource, 0, 32),
		resource.FPR: make([]resource.Resource, 0, 32),
		resource.CSR: {resource.Csr("773")},
	}
	for i := 0; i < 32; i++ {
		universe[resource.GPR] = append(universe[resource.GPR], resource.Reg(resource.GPR, i))
		universe[resource.FPR] = append(universe[resource.FPR], resource.Reg(resource.FPR, i))
	}
	forbidden := func(r resource.Resource) bool {
		return r.Namespace == resource.GPR && r.ID == "0"
	}
	return resource.NewSpace(universe, forbidden)
}
