package codegen

import (
	"errors"
	"testing"
)

type child struct {
	kind string
	id   string
}

func sameKind(a, b child) bool { return a.kind == b.kind }

func TestSortChildrenAlignsWithArchetype(t *testing.T) {
	x := child{kind: "X", id: "x"}
	y := child{kind: "Y", id: "y"}
	x2 := child{kind: "X", id: "x'"}
	y2 := child{kind: "Y", id: "y'"}

	sorted := SortChildren("test", [][]child{{x, y}, {y2, x2}}, sameKind)
	if sorted[0][0] != x || sorted[0][1] != y {
		t.Fatalf("archetype reordered: %+v", sorted[0])
	}
	if sorted[1][0] != x2 || sorted[1][1] != y2 {
		t.Fatalf("expected [x' y'], got %+v", sorted[1])
	}
}

func TestSortChildrenStableOnTies(t *testing.T) {
	a := []child{{kind: "X", id: "a0"}, {kind: "X", id: "a1"}}
	b := []child{{kind: "X", id: "b0"}, {kind: "X", id: "b1"}}
	sorted := SortChildren("test", [][]child{a, b}, sameKind)
	if sorted[1][0].id != "b0" || sorted[1][1].id != "b1" {
		t.Fatalf("tie order not preserved: %+v", sorted[1])
	}
}

func TestMatchChildrenAugmentsWhenGreedyFails(t *testing.T) {
	// slot A accepts both children, slot B only the first one
	archetype := []string{"A", "B"}
	children := []string{"c1", "c2"}
	canMerge := func(a, c string) bool {
		return a == "A" || c == "c1"
	}
	out, ok := MatchChildren(archetype, children, canMerge)
	if !ok {
		t.Fatal("expected a matching")
	}
	if out[0] != "c2" || out[1] != "c1" {
		t.Fatalf("unexpected matching: %v", out)
	}
}

func TestSortChildrenFailures(t *testing.T) {
	x := child{kind: "X"}
	y := child{kind: "Y"}
	cases := map[string][][]child{
		"length mismatch": {{x, y}, {x}},
		"no ordering":     {{x, y}, {x, x}},
	}
	for name, members := range cases {
		t.Run(name, func(t *testing.T) {
			err := catch(func() { SortChildren("test", members, sameKind) })
			if !errors.Is(err, ErrInternal) {
				t.Fatalf("expected internal error, got %v", err)
			}
		})
	}
}
