// Package memstore implements the Memory Store (spec 4.3): it tracks banks,
// permissions, placed instructions and data, and hands out contiguous data
// and code regions. Its bank/access-mode checks are the direct descendant of
// the page-permission check in gmofishsauce-wut4/emul's translate(), lifted
// from a 4-context MMU to the named rx/rw/rwx access modes of spec section 3.
package memstore

import (
	"errors"
	"fmt"
)

// Address is a 64-bit byte address; arithmetic on it is modulo 2^64 by
// virtue of Go's uint64 wraparound.
type Address uint64

// Access is a bank's permitted operations.
type Access int

const (
	RX Access = iota
	RW
	RWX
)

func (a Access) CanExecute() bool { return a == RX || a == RWX }
func (a Access) CanRead() bool    { return a == RX || a == RW || a == RWX }
func (a Access) CanWrite() bool   { return a == RW || a == RWX }

func ParseAccess(s string) (Access, error) {
	switch s {
	case "rx":
		return RX, nil
	case "rw":
		return RW, nil
	case "rwx":
		return RWX, nil
	default:
		return 0, fmt.Errorf("memstore: unknown access mode %q", s)
	}
}

// Bank is a named, contiguous byte range with access rights (spec 3).
type Bank struct {
	Name   string
	Base   Address
	Size   Address
	Code   bool
	Data   bool
	Access Access
}

func (b Bank) End() Address { return b.Base + b.Size }

func (b Bank) Contains(addr Address, n Address) bool {
	return addr >= b.Base && addr+n <= b.End() && addr+n >= addr
}

// CellKind tags the closed Cell variant (Design Notes 9: tagged variant over
// dynamic dispatch, to keep the placement set closed and auditable).
type CellKind int

const (
	CellInstruction CellKind = iota
	CellData
	CellReserved
)

// Cell is what occupies a placed address.
type Cell struct {
	Kind     CellKind
	Form     string   // CellInstruction
	Operands []int64  // CellInstruction
	Bytes    []byte   // CellInstruction (encoded) or CellData
	Purpose  string   // CellData
}

// Sentinel errors (spec 7).
var (
	ErrOutOfSpace        = errors.New("memstore: out of space")
	ErrPlacementConflict = errors.New("memstore: placement conflict")
	ErrAccessFault       = errors.New("memstore: access fault")
	ErrNoBank            = errors.New("memstore: address not in any bank")
)

// Store owns banks, placements, and the bump allocators for code and data.
type Store struct {
	Banks []Bank

	placements map[Address]*Cell
	order      []Address // insertion order, for deterministic emission

	codeBankIdx int // index into Banks of the primary code region
	dataBankIdx int // index into Banks of the primary data region, or -1
	hasDataBank bool

	codeNext Address
	dataNext Address
	dataBase Address // start of the primary data region

	exitBase Address
	exitSize Address
	bootAddr Address
}

// Config mirrors the external memory-config shape (spec 6) after schema
// validation and defaulting.
type Config struct {
	Banks       []Bank
	DataReserve Address // default 262144
	Boot        *Address
}

const defaultDataReserve = 262144

// New builds a Store from a validated Config. It locates the primary code
// bank (exactly one bank with Code=true) and the primary data region: either
// a distinct Data=true bank, or — when one bank carries both Code and Data —
// a data reserve carved off its upper end.
func New(cfg Config) (*Store, error) {
	s := &Store{
		placements:  make(map[Address]*Cell),
		codeBankIdx: -1,
		dataBankIdx: -1,
	}
	reserve := cfg.DataReserve
	if reserve == 0 {
		reserve = defaultDataReserve
	}

	s.Banks = append(s.Banks, cfg.Banks...)

	for i, b := range s.Banks {
		if b.Code {
			if s.codeBankIdx != -1 {
				return nil, fmt.Errorf("memstore: more than one bank with code=true")
			}
			s.codeBankIdx = i
		}
	}
	if s.codeBankIdx == -1 {
		return nil, fmt.Errorf("memstore: no bank with code=true")
	}

	for i, b := range s.Banks {
		if b.Data && i != s.codeBankIdx {
			if s.dataBankIdx != -1 {
				return nil, fmt.Errorf("memstore: more than one distinct data bank")
			}
			s.dataBankIdx = i
			s.hasDataBank = true
		}
	}

	codeBank := s.Banks[s.codeBankIdx]
	if s.hasDataBank {
		s.codeNext = codeBank.Base
		db := s.Banks[s.dataBankIdx]
		s.dataNext = db.Base
		s.dataBase = db.Base
	} else if codeBank.Data {
		// Unified rx+data bank (in practice rwx): split a data reserve off
		// the upper end.
		if reserve >= codeBank.Size {
			return nil, fmt.Errorf("memstore: data_reserve %d >= bank size %d", reserve, codeBank.Size)
		}
		s.codeNext = codeBank.Base
		s.dataNext = codeBank.End() - reserve
		s.dataBase = s.dataNext
		s.dataBankIdx = s.codeBankIdx
		s.hasDataBank = true
	} else {
		s.codeNext = codeBank.Base
		// No data bank at all: data allocation will always fail with
		// ErrOutOfSpace, which is a legal (if unusual) configuration.
		s.dataBankIdx = -1
	}

	return s, nil
}

// CodeBank returns the primary code region.
func (s *Store) CodeBank() Bank { return s.Banks[s.codeBankIdx] }

// DataRegionBase reports the base of the primary data region and whether one
// exists, for the emitter's "# Data region:" header line.
func (s *Store) DataRegionBase() (Address, bool) {
	if s.dataBankIdx == -1 {
		return 0, false
	}
	return s.dataBase, true
}

// DataRegionIsDistinctBank reports whether the data region is a bank
// separate from the code bank (vs. a carved-off reserve at the tail of a
// unified bank) — the emitter only prints "# Data region:" in the distinct
// case (spec 6 example scenario 6).
func (s *Store) DataRegionIsDistinctBank() bool {
	return s.hasDataBank && s.dataBankIdx != s.codeBankIdx
}

func align(addr Address, alignment Address) Address {
	if alignment <= 1 {
		return addr
	}
	rem := addr % alignment
	if rem == 0 {
		return addr
	}
	return addr + (alignment - rem)
}

// bankFor finds the bank containing [addr, addr+n).
func (s *Store) bankFor(addr Address, n Address) (Bank, error) {
	for _, b := range s.Banks {
		if b.Contains(addr, n) {
			return b, nil
		}
	}
	return Bank{}, ErrNoBank
}

// AllocateCode returns the next aligned free address in the primary code
// region and marks it Reserved.
func (s *Store) AllocateCode(nBytes, alignment Address) (Address, error) {
	bank := s.CodeBank()
	addr := align(s.codeNext, alignment)
	if !bank.Contains(addr, nBytes) {
		return 0, ErrOutOfSpace
	}
	s.reserveLocked(addr, nBytes)
	s.codeNext = addr + nBytes
	return addr, nil
}

// AllocateData allocates in the data region (distinct bank, or the
// data-reserve tail of a unified bank).
func (s *Store) AllocateData(nBytes, alignment Address) (Address, error) {
	if s.dataBankIdx == -1 {
		return 0, ErrOutOfSpace
	}
	bank := s.Banks[s.dataBankIdx]
	addr := align(s.dataNext, alignment)
	if !bank.Contains(addr, nBytes) {
		return 0, ErrOutOfSpace
	}
	s.reserveLocked(addr, nBytes)
	s.dataNext = addr + nBytes
	return addr, nil
}

func (s *Store) reserveLocked(addr, n Address) {
	for a := addr; a < addr+n; a++ {
		if _, exists := s.placements[a]; !exists {
			s.placements[a] = &Cell{Kind: CellReserved}
			s.order = append(s.order, a)
		}
	}
}

// Reserve pre-reserves a single code address some later branch will target,
// without allocating it from the bump cursor (it may already be a future
// AllocateCode address, or an address the caller has chosen directly, e.g.
// the boot or exit address).
func (s *Store) Reserve(addr Address) error {
	if _, err := s.bankFor(addr, 1); err != nil {
		return err
	}
	if c, exists := s.placements[addr]; exists && c.Kind != CellReserved {
		return nil // already placed; legal per Design Notes open question
	}
	if _, exists := s.placements[addr]; !exists {
		s.placements[addr] = &Cell{Kind: CellReserved}
		s.order = append(s.order, addr)
	}
	return nil
}

// IsPlaced reports whether addr holds an Instruction or Data cell (not
// merely Reserved).
func (s *Store) IsPlaced(addr Address) bool {
	c, ok := s.placements[addr]
	return ok && c.Kind != CellReserved
}

// IsReservedOrFree reports whether addr may still receive a placement:
// either nothing is there yet, or it is Reserved.
func (s *Store) IsReservedOrFree(addr Address) bool {
	c, ok := s.placements[addr]
	return !ok || c.Kind == CellReserved
}

// FreeCodeAddress reports whether addr is inside the code bank and not yet
// placed with an instruction.
func (s *Store) FreeCodeAddress(addr Address) bool {
	bank := s.CodeBank()
	if !bank.Contains(addr, 1) {
		return false
	}
	return s.IsReservedOrFree(addr)
}

// PlaceInstruction writes encoded bytes for an instruction at addr. addr
// must be Reserved or free, and the enclosing bank must permit execute.
// A branch/jump target passed by the caller as branchTarget (nil if none)
// is registered as a Reserved code address so the placement invariant in
// spec section 3 holds.
func (s *Store) PlaceInstruction(addr Address, form string, operands []int64, encoded []byte, branchTarget *Address) error {
	n := Address(len(encoded))
	bank, err := s.bankFor(addr, n)
	if err != nil {
		return err
	}
	if !bank.Access.CanExecute() {
		return fmt.Errorf("%w: bank %s does not permit execute", ErrAccessFault, bank.Name)
	}
	if !s.IsReservedOrFree(addr) {
		return fmt.Errorf("%w: address 0x%x already placed", ErrPlacementConflict, addr)
	}
	for a := addr + 1; a < addr+n; a++ {
		if s.IsPlaced(Address(a)) {
			return fmt.Errorf("%w: address 0x%x already placed", ErrPlacementConflict, a)
		}
	}
	cell := &Cell{Kind: CellInstruction, Form: form, Operands: operands, Bytes: encoded}
	if _, exists := s.placements[addr]; !exists {
		s.order = append(s.order, addr)
	}
	s.placements[addr] = cell
	for a := addr + 1; a < addr+n; a++ {
		s.placements[a] = &Cell{Kind: CellReserved}
		s.order = append(s.order, a)
	}
	if s.codeNext < addr+n && bank.Contains(addr+n, 0) {
		s.codeNext = addr + n
	}
	if branchTarget != nil {
		if err := s.Reserve(*branchTarget); err != nil {
			return err
		}
	}
	return nil
}

// PlaceData writes bytes at addr in a data-capable (rw/rwx) bank, or in a
// data bank's constant pool.
func (s *Store) PlaceData(addr Address, bytes []byte) error {
	n := Address(len(bytes))
	bank, err := s.bankFor(addr, n)
	if err != nil {
		return err
	}
	if !bank.Access.CanRead() || !bank.Access.CanWrite() {
		if !(bank.Data && bank.Access.CanRead()) {
			return fmt.Errorf("%w: bank %s does not permit data placement", ErrAccessFault, bank.Name)
		}
	}
	if !s.IsReservedOrFree(addr) {
		return fmt.Errorf("%w: address 0x%x already placed", ErrPlacementConflict, addr)
	}
	cell := &Cell{Kind: CellData, Bytes: bytes}
	if _, exists := s.placements[addr]; !exists {
		s.order = append(s.order, addr)
	}
	s.placements[addr] = cell
	for a := addr + 1; a < addr+n; a++ {
		s.placements[a] = &Cell{Kind: CellReserved}
		s.order = append(s.order, a)
	}
	return nil
}

// OverwriteData rewrites bytes at an address previously placed with
// PlaceData, honoring write permission. Unlike PlaceData it does not require
// the address to be free — this is how the Execution Model applies a
// generated `sw`/`sh`/`sb` to a data blob a Store sequence already placed.
func (s *Store) OverwriteData(addr Address, bytes []byte) error {
	n := Address(len(bytes))
	bank, err := s.bankFor(addr, n)
	if err != nil {
		return err
	}
	if !bank.Access.CanWrite() {
		return fmt.Errorf("%w: bank %s does not permit write", ErrAccessFault, bank.Name)
	}
	c, ok := s.placements[addr]
	if !ok || c.Kind == CellReserved {
		// Self-modifying write into a never-placed address: still disallowed
		// outside of the DataBlob-then-store pattern sequences use.
		return fmt.Errorf("%w: 0x%x was never placed with data", ErrAccessFault, addr)
	}
	copy(c.Bytes, bytes)
	return nil
}

// Read honors bank permissions; it returns ErrAccessFault for unmapped or
// non-readable addresses (used by LoadException-style sequences that
// deliberately fault, and by the Execution Model's load handling).
func (s *Store) Read(addr Address, n Address) ([]byte, error) {
	bank, err := s.bankFor(addr, n)
	if err != nil {
		return nil, fmt.Errorf("%w: 0x%x", ErrAccessFault, addr)
	}
	if !bank.Access.CanRead() {
		return nil, fmt.Errorf("%w: 0x%x not readable", ErrAccessFault, addr)
	}
	out := make([]byte, n)
	for i := Address(0); i < n; i++ {
		if c, ok := s.placements[addr+i]; ok && len(c.Bytes) > 0 {
			// best-effort: only exact single-cell reads reconstruct bytes
			// precisely; sequences only ever read back their own DataBlob.
			copy(out[i:], c.Bytes)
			break
		}
	}
	return out, nil
}

// Get returns the cell at addr, if any.
func (s *Store) Get(addr Address) (*Cell, bool) {
	c, ok := s.placements[addr]
	return c, ok
}

// Placements returns every placed (non-Reserved) address in insertion
// order, for the emitter.
func (s *Store) Placements() []Address {
	var out []Address
	for _, a := range s.order {
		if c := s.placements[a]; c.Kind != CellReserved {
			out = append(out, a)
		}
	}
	return out
}

// UnresolvedReservations returns every address whose cell is still
// Reserved, in insertion order. Besides reserved targets that were never
// placed, this includes the trailing bytes of multi-byte instruction and
// data placements, which are recorded as Reserved cells. The engine does not
// call it, so an unplaced target does not fail a run.
func (s *Store) UnresolvedReservations() []Address {
	var out []Address
	for _, a := range s.order {
		if c := s.placements[a]; c.Kind == CellReserved {
			out = append(out, a)
		}
	}
	return out
}

// SetBootExit records the chosen boot/exit window so queries like
// FreeCodeAddress and emitters can reason about them; it does not itself
// reserve the window (callers call Reserve for that).
func (s *Store) SetBootExit(boot, exitBase Address, exitSize Address) {
	s.bootAddr = boot
	s.exitBase = exitBase
	s.exitSize = exitSize
}

func (s *Store) BootAddr() Address { return s.bootAddr }
func (s *Store) ExitBase() Address { return s.exitBase }
func (s *Store) ExitSize() Address { return s.exitSize }

// InExitRegion reports whether addr lies in [exitBase, exitBase+exitSize).
func (s *Store) InExitRegion(addr Address) bool {
	return addr >= s.exitBase && addr < s.exitBase+s.exitSize
}
