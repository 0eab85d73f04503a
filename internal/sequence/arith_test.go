package sequence

import (
	"testing"

	"github.com/jberkowitz/tibbar/internal/prng"
	"github.com/jberkowitz/tibbar/internal/resource"
)

func claimGPRs(t *testing.T, n int) *resource.Claim {
	t.Helper()
	universe := map[resource.Namespace][]resource.Resource{
		resource.GPR: {
			resource.Reg(resource.GPR, 1), resource.Reg(resource.GPR, 2),
			resource.Reg(resource.GPR, 3), resource.Reg(resource.GPR, 4),
		},
	}
	space := resource.NewSpace(universe, nil)
	claim, err := space.Request(resource.ClaimSpec{Exclusive: []resource.Item{resource.AnySlot(resource.GPR, n)}})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if claim == nil {
		t.Fatalf("expected a granted claim")
	}
	return claim
}

func TestRandomSafeInstrsYieldsExactCount(t *testing.T) {
	seq := NewRandomSafeInstrs(5)
	seq.SetClaim(claimGPRs(t, 3))
	ctx := &Context{RNG: prng.NewRoot(1)}

	n := 0
	for {
		_, ok, err := seq.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		n++
	}
	if n != 5 {
		t.Fatalf("yielded %d instructions, want 5", n)
	}
}

func TestHazardsEmitsTrueDataHazard(t *testing.T) {
	seq := NewHazards()
	seq.SetClaim(claimGPRs(t, 3))
	ctx := &Context{RNG: prng.NewRoot(1)}

	writer, ok, err := seq.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("writer Next: ok=%v err=%v", ok, err)
	}
	reader, ok, err := seq.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("reader Next: ok=%v err=%v", ok, err)
	}
	_, ok, err = seq.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatalf("Hazards should exhaust after exactly 2 items")
	}

	writerDest := writer.Operands[0]
	hazardFound := false
	for _, src := range reader.Operands[1:] {
		if src == writerDest {
			hazardFound = true
		}
	}
	if !hazardFound {
		t.Fatalf("reader %+v does not read the writer's destination %d", reader, writerDest)
	}
}
