package gendata

import "testing"

func TestInstrKind(t *testing.T) {
	g := Instr("addi", []int64{1, 0, 5})
	if g.Kind != KindInstr {
		t.Fatalf("expected KindInstr, got %v", g.Kind)
	}
	if g.Form != "addi" || len(g.Operands) != 3 {
		t.Fatalf("unexpected instr fields: %+v", g)
	}
}

func TestDataBlobBackChannelAddrStartsZero(t *testing.T) {
	g := DataBlob([]byte{1, 2, 3, 4}, 4, "stack")
	if g.Kind != KindDataBlob {
		t.Fatalf("expected KindDataBlob, got %v", g.Kind)
	}
	if g.DataAddr == nil {
		t.Fatalf("DataBlob must allocate a back-channel DataAddr pointer")
	}
	if *g.DataAddr != 0 {
		t.Fatalf("DataAddr should start at the zero address before placement, got %v", *g.DataAddr)
	}
	*g.DataAddr = 0x80001000
	if *g.DataAddr != 0x80001000 {
		t.Fatalf("back-channel write did not take effect")
	}
}

func TestReserveKind(t *testing.T) {
	g := Reserve(0x80000040)
	if g.Kind != KindReserve {
		t.Fatalf("expected KindReserve, got %v", g.Kind)
	}
	if g.Target != 0x80000040 {
		t.Fatalf("unexpected target: %v", g.Target)
	}
}
