package wire

import "testing"

func TestCheckAcyclicDetectsSelfReference(t *testing.T) {
	type node struct {
		Next *node
	}
	n := &node{}
	n.Next = n

	if err := checkAcyclic(n); err == nil {
		t.Fatal("expected cycle to be detected")
	}
}

func TestCheckAcyclicAllowsSharedNonCyclicPointer(t *testing.T) {
	type leaf struct{ V int }
	shared := &leaf{V: 1}
	type pair struct {
		A, B *leaf
	}
	p := pair{A: shared, B: shared}

	if err := checkAcyclic(p); err != nil {
		t.Fatalf("shared (non-cyclic) pointer should not error: %v", err)
	}
}

func TestCheckAcyclicRejectsChan(t *testing.T) {
	ch := make(chan int)
	if err := checkAcyclic(ch); err == nil {
		t.Fatal("expected chan to be rejected")
	}
}
