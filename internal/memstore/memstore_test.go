package memstore

import (
	"errors"
	"testing"
)

func singleBankConfig() Config {
	return Config{
		Banks: []Bank{{
			Name:   "ram",
			Base:   0x80000000,
			Size:   0x80000,
			Code:   true,
			Data:   true,
			Access: RWX,
		}},
	}
}

func TestNewRejectsMultipleCodeBanks(t *testing.T) {
	cfg := Config{Banks: []Bank{
		{Name: "a", Base: 0, Size: 0x1000, Code: true, Access: RX},
		{Name: "b", Base: 0x1000, Size: 0x1000, Code: true, Access: RX},
	}}
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for two code banks, got nil")
	}
}

func TestNewRejectsNoCodeBank(t *testing.T) {
	cfg := Config{Banks: []Bank{{Name: "a", Base: 0, Size: 0x1000, Access: RW}}}
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for no code bank, got nil")
	}
}

func TestUnifiedBankSplitsDataReserve(t *testing.T) {
	s, err := New(singleBankConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	base, ok := s.DataRegionBase()
	if !ok {
		t.Fatalf("expected a data region")
	}
	if s.DataRegionIsDistinctBank() {
		t.Fatalf("unified bank should not report a distinct data bank")
	}
	codeBank := s.CodeBank()
	wantBase := codeBank.End() - defaultDataReserve
	if base != wantBase {
		t.Fatalf("data region base = 0x%x, want 0x%x", base, wantBase)
	}
}

func TestAllocateCodeAndDataAreDisjoint(t *testing.T) {
	s, err := New(singleBankConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	codeAddr, err := s.AllocateCode(4, 4)
	if err != nil {
		t.Fatalf("AllocateCode: %v", err)
	}
	dataAddr, err := s.AllocateData(8, 4)
	if err != nil {
		t.Fatalf("AllocateData: %v", err)
	}
	if codeAddr >= dataAddr && dataAddr+8 > codeAddr {
		t.Fatalf("code 0x%x and data 0x%x overlap", codeAddr, dataAddr)
	}
}

func TestPlaceInstructionRejectsConflict(t *testing.T) {
	s, err := New(singleBankConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	addr := s.CodeBank().Base
	if err := s.PlaceInstruction(addr, "add", []int64{1, 2, 3}, []byte{1, 2, 3, 4}, nil); err != nil {
		t.Fatalf("first placement: %v", err)
	}
	if err := s.PlaceInstruction(addr, "add", []int64{1, 2, 3}, []byte{1, 2, 3, 4}, nil); !errors.Is(err, ErrPlacementConflict) {
		t.Fatalf("expected ErrPlacementConflict, got %v", err)
	}
}

func TestPlaceInstructionReservesBranchTarget(t *testing.T) {
	s, err := New(singleBankConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	base := s.CodeBank().Base
	target := base + 64
	if err := s.PlaceInstruction(base, "beq", []int64{0, 0, 16}, []byte{1, 2, 3, 4}, &target); err != nil {
		t.Fatalf("PlaceInstruction: %v", err)
	}
	if s.IsPlaced(target) {
		t.Fatalf("branch target should be Reserved, not Placed")
	}
	unresolved := s.UnresolvedReservations()
	found := false
	for _, a := range unresolved {
		if a == target {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 0x%x in UnresolvedReservations", target)
	}
}

func TestAccessFaultOnNonExecutableBank(t *testing.T) {
	cfg := Config{Banks: []Bank{
		{Name: "code", Base: 0, Size: 0x1000, Code: true, Access: RX},
		{Name: "data", Base: 0x1000, Size: 0x1000, Data: true, Access: RW},
	}}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.PlaceInstruction(0x1000, "add", nil, []byte{1, 2, 3, 4}, nil); !errors.Is(err, ErrAccessFault) {
		t.Fatalf("expected ErrAccessFault placing code in data bank, got %v", err)
	}
}

func TestOverwriteDataRequiresPriorPlacement(t *testing.T) {
	s, err := New(singleBankConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	addr, err := s.AllocateData(4, 4)
	if err != nil {
		t.Fatalf("AllocateData: %v", err)
	}
	if err := s.OverwriteData(addr, []byte{9, 9, 9, 9}); err == nil {
		t.Fatalf("expected error overwriting a Reserved-only address")
	}
	if err := s.PlaceData(addr, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("PlaceData: %v", err)
	}
	if err := s.OverwriteData(addr, []byte{9, 9, 9, 9}); err != nil {
		t.Fatalf("OverwriteData after placement: %v", err)
	}
	c, ok := s.Get(addr)
	if !ok || c.Bytes[0] != 9 {
		t.Fatalf("overwrite did not take effect: %+v", c)
	}
}

func TestInExitRegion(t *testing.T) {
	s, err := New(singleBankConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.SetBootExit(s.CodeBank().Base, s.CodeBank().Base+0x100, 0x10)
	if !s.InExitRegion(s.CodeBank().Base + 0x104) {
		t.Fatalf("expected address inside exit window to report InExitRegion")
	}
	if s.InExitRegion(s.CodeBank().Base) {
		t.Fatalf("boot address should not be in the exit window")
	}
}
