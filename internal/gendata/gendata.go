// Package gendata defines GenData, the item a Sequence yields (spec 4.5).
// It is modeled as a closed tagged variant per the Design Notes in spec
// section 9 ("Dynamic dispatch over sequence types should be modeled as a
// tagged variant"), rather than an interface with type switches scattered
// across the engine.
package gendata

import "github.com/jberkowitz/tibbar/internal/memstore"

// Kind tags which variant a GenData holds.
type Kind int

const (
	KindInstr Kind = iota
	KindDataBlob
	KindReserve
)

// GenData is one item produced by a Sequence.
type GenData struct {
	Kind Kind

	// KindInstr
	Form     string
	Operands []int64

	// KindDataBlob. DataAddr is filled in by the engine, synchronously,
	// after it places Bytes — the back-channel a sequence reads on its
	// next Next() call to learn where its blob landed (spec 4.5).
	Bytes     []byte
	Alignment memstore.Address
	Purpose   string
	DataAddr  *memstore.Address

	// KindReserve
	Target memstore.Address
}

func Instr(form string, operands []int64) GenData {
	return GenData{Kind: KindInstr, Form: form, Operands: operands}
}

func DataBlob(bytes []byte, alignment memstore.Address, purpose string) GenData {
	return GenData{Kind: KindDataBlob, Bytes: bytes, Alignment: alignment, Purpose: purpose, DataAddr: new(memstore.Address)}
}

func Reserve(target memstore.Address) GenData {
	return GenData{Kind: KindReserve, Target: target}
}
