package funnel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jberkowitz/tibbar/internal/gendata"
	"github.com/jberkowitz/tibbar/internal/resource"
	"github.com/jberkowitz/tibbar/internal/sequence"
)

// fakeSeq is a minimal Sequence for exercising funnel reservation lifecycle
// without pulling in the real ISA/execution model.
type fakeSeq struct {
	name    string
	spec    resource.ClaimSpec
	claim   *resource.Claim
	n       int // items to yield before exhausting
	yielded int
}

func (f *fakeSeq) Name() string                          { return f.name }
func (f *fakeSeq) ResourceRequests() resource.ClaimSpec   { return f.spec }
func (f *fakeSeq) SetClaim(c *resource.Claim)             { f.claim = c }
func (f *fakeSeq) Next(ctx *sequence.Context) (gendata.GenData, bool, error) {
	if f.yielded >= f.n {
		return gendata.GenData{}, false, nil
	}
	f.yielded++
	return gendata.Instr("nop", nil), true, nil
}

func gprUniverse() *resource.Space {
	universe := map[resource.Namespace][]resource.Resource{
		resource.GPR: {resource.Reg(resource.GPR, 1), resource.Reg(resource.GPR, 5), resource.Reg(resource.GPR, 6)},
	}
	return resource.NewSpace(universe, nil)
}

func TestSimpleFunnelDrainsInOrder(t *testing.T) {
	reserver := gprUniverse()
	a := &fakeSeq{name: "a", n: 2}
	b := &fakeSeq{name: "b", n: 1}
	f := NewSimpleFunnel(reserver, a, b)

	var names []string
	for {
		beforeA, beforeB := a.yielded, b.yielded
		_, ok, err := f.Next(nil)
		require.NoError(t, err)
		if !ok {
			break
		}
		switch {
		case a.yielded > beforeA:
			names = append(names, "a")
		case b.yielded > beforeB:
			names = append(names, "b")
		}
	}
	require.True(t, f.Done())
	require.Equal(t, []string{"a", "a", "b"}, names)
}

func TestRoundRobinFunnelInterleaves(t *testing.T) {
	reserver := gprUniverse()
	a := &fakeSeq{name: "a", n: 2}
	b := &fakeSeq{name: "b", n: 2}
	f := NewRoundRobinFunnel(reserver, a, b)

	count := 0
	for {
		_, ok, err := f.Next(nil)
		require.NoError(t, err)
		if !ok && f.Done() {
			break
		}
		if ok {
			count++
		}
		if count > 10 {
			t.Fatalf("round robin funnel did not converge")
		}
	}
	require.Equal(t, 4, count)
	require.True(t, f.Done())
}

func TestRoundRobinFunnelDropsOnResourceConflict(t *testing.T) {
	reserver := gprUniverse()
	gpr5 := resource.ConcreteItem(resource.Reg(resource.GPR, 5))

	winner := &fakeSeq{name: "winner", n: 5, spec: resource.ClaimSpec{Exclusive: []resource.Item{gpr5}}}
	loser := &fakeSeq{name: "loser", n: 5, spec: resource.ClaimSpec{Exclusive: []resource.Item{gpr5}}}
	f := NewRoundRobinFunnel(reserver, winner, loser)

	for i := 0; i < 200 && !f.Done(); i++ {
		_, _, err := f.Next(nil)
		require.NoError(t, err)
	}
	require.True(t, f.Done(), "funnel should eventually drop the perpetually-unreservable child")
	require.Equal(t, 5, winner.yielded)
	require.Equal(t, 0, loser.yielded)
}
