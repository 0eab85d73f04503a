package resource

import (
	"errors"
	"testing"
)

func gprSpace() *Space {
	universe := map[Namespace][]Resource{
		GPR: {Reg(GPR, 0), Reg(GPR, 1), Reg(GPR, 2), Reg(GPR, 5)},
		CSR: {Csr("773"), Csr("mvendorid")},
	}
	forbidden := func(r Resource) bool {
		return r == Reg(GPR, 0) || r == Csr("mvendorid")
	}
	return NewSpace(universe, forbidden)
}

func TestRequestGrantsExclusive(t *testing.T) {
	s := gprSpace()
	claim, err := s.Request(ClaimSpec{Exclusive: []Item{ConcreteItem(Reg(GPR, 1))}})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if claim == nil || !claim.Has(Reg(GPR, 1)) {
		t.Fatalf("expected granted claim over GPR1")
	}
	if !claim.CanWrite(Reg(GPR, 1)) {
		t.Fatalf("exclusive holder should be able to write")
	}
}

func TestRequestConflictingExclusiveFailsWithoutError(t *testing.T) {
	s := gprSpace()
	first, err := s.Request(ClaimSpec{Exclusive: []Item{ConcreteItem(Reg(GPR, 1))}})
	if err != nil || first == nil {
		t.Fatalf("first Request should succeed: %v", err)
	}
	second, err := s.Request(ClaimSpec{Exclusive: []Item{ConcreteItem(Reg(GPR, 1))}})
	if err != nil {
		t.Fatalf("conflicting request should fail with (nil, nil), got error %v", err)
	}
	if second != nil {
		t.Fatalf("expected nil claim on conflicting exclusive request")
	}
}

func TestRequestAllOrNothing(t *testing.T) {
	s := gprSpace()
	// Claim GPR2 first so the combined request below can't be satisfied.
	held, err := s.Request(ClaimSpec{Exclusive: []Item{ConcreteItem(Reg(GPR, 2))}})
	if err != nil || held == nil {
		t.Fatalf("setup claim failed: %v", err)
	}

	claim, err := s.Request(ClaimSpec{Exclusive: []Item{
		ConcreteItem(Reg(GPR, 1)),
		ConcreteItem(Reg(GPR, 2)), // already held; whole request must fail
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claim != nil {
		t.Fatalf("expected atomic failure, got partial claim")
	}

	// GPR1 must not have been granted as a side effect of the failed request.
	probe, err := s.Request(ClaimSpec{Exclusive: []Item{ConcreteItem(Reg(GPR, 1))}})
	if err != nil || probe == nil {
		t.Fatalf("GPR1 should still be free after the atomic failure: %v", err)
	}
}

func TestRequestForbiddenResourceIsInvalid(t *testing.T) {
	s := gprSpace()
	_, err := s.Request(ClaimSpec{Exclusive: []Item{ConcreteItem(Reg(GPR, 0))}})
	if !errors.Is(err, ErrInvalidResource) {
		t.Fatalf("expected ErrInvalidResource for GPR0, got %v", err)
	}
}

func TestSharedClaimsCoexist(t *testing.T) {
	s := gprSpace()
	a, err := s.Request(ClaimSpec{Shared: []Item{ConcreteItem(Reg(GPR, 1))}})
	if err != nil || a == nil {
		t.Fatalf("first shared request: %v", err)
	}
	b, err := s.Request(ClaimSpec{Shared: []Item{ConcreteItem(Reg(GPR, 1))}})
	if err != nil || b == nil {
		t.Fatalf("second shared request should coexist: %v", err)
	}
	if a.CanWrite(Reg(GPR, 1)) || b.CanWrite(Reg(GPR, 1)) {
		t.Fatalf("shared holders must not be able to write")
	}
}

func TestReleaseReturnsResourceToPool(t *testing.T) {
	s := gprSpace()
	claim, err := s.Request(ClaimSpec{Exclusive: []Item{ConcreteItem(Reg(GPR, 1))}})
	if err != nil || claim == nil {
		t.Fatalf("setup: %v", err)
	}
	s.Release(claim)
	again, err := s.Request(ClaimSpec{Exclusive: []Item{ConcreteItem(Reg(GPR, 1))}})
	if err != nil || again == nil {
		t.Fatalf("expected GPR1 reclaimable after release: %v", err)
	}
}

func TestSharedRefcountReleasesAtZero(t *testing.T) {
	s := gprSpace()
	a, _ := s.Request(ClaimSpec{Shared: []Item{ConcreteItem(Reg(GPR, 1))}})
	b, _ := s.Request(ClaimSpec{Shared: []Item{ConcreteItem(Reg(GPR, 1))}})
	s.Release(a)

	// Still held shared by b: an exclusive request must fail.
	excl, err := s.Request(ClaimSpec{Exclusive: []Item{ConcreteItem(Reg(GPR, 1))}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if excl != nil {
		t.Fatalf("expected exclusive request to fail while shared refcount > 0")
	}

	s.Release(b)
	excl, err = s.Request(ClaimSpec{Exclusive: []Item{ConcreteItem(Reg(GPR, 1))}})
	if err != nil || excl == nil {
		t.Fatalf("expected exclusive request to succeed once refcount hits zero: %v", err)
	}
}

func TestAnySlotAvoidsDoubleBookingWithinOneRequest(t *testing.T) {
	s := gprSpace()
	claim, err := s.Request(ClaimSpec{Exclusive: []Item{AnySlot(GPR, 2)}})
	if err != nil || claim == nil {
		t.Fatalf("Request: %v", err)
	}
	if len(claim.Exclusive) != 2 {
		t.Fatalf("expected 2 distinct resources granted, got %d", len(claim.Exclusive))
	}
}
