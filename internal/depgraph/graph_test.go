package depgraph

import (
	"reflect"
	"testing"
)

func TestOrderedRespectsDependencies(t *testing.T) {
	g := New()
	g.AddEdge("mcp", "pf", Hard)
	g.AddEdge("pf", "k8s", Hard)

	order, err := g.Ordered()
	if err != nil {
		t.Fatal(err)
	}
	pos := indexOf(order)
	if !(pos["k8s"] < pos["pf"] && pos["pf"] < pos["mcp"]) {
		t.Fatalf("expected k8s before pf before mcp, got %v", order)
	}
}

func TestOrderedTieBreaksByName(t *testing.T) {
	g := New()
	g.AddNode("zeta")
	g.AddNode("alpha")
	g.AddNode("mike")

	order, err := g.Ordered()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"alpha", "mike", "zeta"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("got %v, want %v", order, want)
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	g := New()
	g.AddEdge("a", "b", Hard)
	g.AddEdge("b", "c", Soft)
	g.AddEdge("c", "a", Hard)

	err := g.Validate()
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if _, ok := err.(*CycleError); !ok {
		t.Fatalf("expected *CycleError, got %T", err)
	}
}

func TestHardDependentsExcludesSoft(t *testing.T) {
	g := New()
	g.AddEdge("a", "base", Hard)
	g.AddEdge("b", "base", Soft)

	hard := g.HardDependents("base")
	if !reflect.DeepEqual(hard, []string{"a"}) {
		t.Fatalf("expected only hard dependent 'a', got %v", hard)
	}
}

func TestRemoveNodeDropsIncomingEdges(t *testing.T) {
	g := New()
	g.AddEdge("a", "b", Hard)
	g.RemoveNode("b")

	if deps := g.Dependencies("a"); len(deps) != 0 {
		t.Fatalf("expected edges to removed node gone, got %v", deps)
	}
	if _, ok := g.nodes["b"]; ok {
		t.Fatal("expected node b removed")
	}
}

func indexOf(order []string) map[string]int {
	m := make(map[string]int, len(order))
	for i, n := range order {
		m[n] = i
	}
	return m
}
