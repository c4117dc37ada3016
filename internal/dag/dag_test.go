package dag

import (
	"reflect"
	"testing"
)

func fixture(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	for _, id := range []string{"public.clients", "public.projects", "public.tasks", "public.users", "public.users_tasks"} {
		g.AddNode(id, nil)
	}
	edges := []struct{ from, to, label string }{
		{"public.projects", "public.clients", "projects_client_id_fkey"},
		{"public.tasks", "public.projects", "tasks_project_id_fkey"},
		{"public.users_tasks", "public.tasks", "users_tasks_task_id_fkey"},
		{"public.users_tasks", "public.users", "users_tasks_user_id_fkey"},
	}
	for _, e := range edges {
		if err := g.AddEdge(e.from, e.to, e.label, nil); err != nil {
			t.Fatalf("failed to add edge: %v", err)
		}
	}
	return g
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := fixture(t)

	if g.NodeCount() != 5 {
		t.Errorf("expected 5 nodes, got %d", g.NodeCount())
	}
	if g.EdgeCount() != 4 {
		t.Errorf("expected 4 edges, got %d", g.EdgeCount())
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", nil)

	if err := g.AddEdge("a", "nonexistent", "fk", nil); err == nil {
		t.Error("expected error for nonexistent target node")
	}
	if err := g.AddEdge("nonexistent", "a", "fk", nil); err == nil {
		t.Error("expected error for nonexistent source node")
	}
}

func TestGraph_SelfReference(t *testing.T) {
	g := NewGraph()
	g.AddNode("public.employees", nil)

	if err := g.AddEdge("public.employees", "public.employees", "manager_fk", nil); err != nil {
		t.Fatalf("self reference should be allowed: %v", err)
	}
	edges := g.EdgesBetween("public.employees", "public.employees")
	if len(edges) != 1 || !edges[0].IsLoop() {
		t.Errorf("expected one loop edge, got %v", edges)
	}
	if hasCycle, _ := g.HasCycle(); hasCycle {
		t.Error("self reference should not count as a cycle")
	}
}

func TestGraph_ParallelEdges(t *testing.T) {
	g := NewGraph()
	g.AddNode("public.messages", nil)
	g.AddNode("public.users", nil)

	_ = g.AddEdge("public.messages", "public.users", "sender_fk", "sender")
	_ = g.AddEdge("public.messages", "public.users", "recipient_fk", "recipient")
	// same label again replaces the data
	_ = g.AddEdge("public.messages", "public.users", "sender_fk", "sender v2")

	edges := g.EdgesBetween("public.messages", "public.users")
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(edges))
	}
	if edges[0].Data != "sender v2" {
		t.Errorf("expected replaced data, got %v", edges[0].Data)
	}
	if in := g.InEdges("public.users"); len(in) != 2 || in[0].Data != "sender v2" {
		t.Errorf("expected in edges to track the replacement, got %v", in)
	}

	if err := g.AddEdge("public.messages", "public.messages", "sender_fk", nil); err == nil {
		t.Error("expected error when a label is reused for another target")
	}
}

func TestGraph_InAndOutEdges(t *testing.T) {
	g := fixture(t)

	out := g.OutEdges("public.users_tasks")
	if len(out) != 2 {
		t.Fatalf("expected 2 out edges, got %d", len(out))
	}
	if out[0].Label != "users_tasks_task_id_fkey" {
		t.Errorf("expected insertion order, got %s first", out[0].Label)
	}

	in := g.InEdges("public.projects")
	if len(in) != 1 || in[0].From != "public.tasks" {
		t.Errorf("unexpected in edges: %v", in)
	}
}

func TestGraph_HasCycle(t *testing.T) {
	g := fixture(t)
	if hasCycle, _ := g.HasCycle(); hasCycle {
		t.Error("expected no cycle")
	}

	_ = g.AddEdge("public.clients", "public.tasks", "clients_favorite_task_fkey", nil)
	hasCycle, path := g.HasCycle()
	if !hasCycle {
		t.Fatal("expected cycle")
	}
	if len(path) < 3 {
		t.Errorf("expected cycle path through several nodes, got %v", path)
	}
}

func TestGraph_Levels(t *testing.T) {
	g := fixture(t)

	levels, err := g.Levels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{
		{"public.clients", "public.users"},
		{"public.projects"},
		{"public.tasks"},
		{"public.users_tasks"},
	}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("levels = %v, want %v", levels, want)
	}

	_ = g.AddEdge("public.clients", "public.users_tasks", "loop_fkey", nil)
	if _, err := g.Levels(); err == nil {
		t.Error("expected error for cyclic graph")
	}
}

func TestGraph_Reachable(t *testing.T) {
	g := fixture(t)
	g.AddNode("public.tbl1", nil)

	got := g.Reachable("public.users")
	want := []string{"public.clients", "public.projects", "public.tasks", "public.users", "public.users_tasks"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Reachable = %v, want %v", got, want)
	}
	if got := g.Reachable("public.tbl1"); !reflect.DeepEqual(got, []string{"public.tbl1"}) {
		t.Errorf("isolated node should reach only itself, got %v", got)
	}
	if got := g.Reachable("missing"); got != nil {
		t.Errorf("expected nil for unknown node, got %v", got)
	}
}

func TestGraph_Clear(t *testing.T) {
	g := fixture(t)
	g.Clear()
	if g.NodeCount() != 0 || g.EdgeCount() != 0 {
		t.Error("expected empty graph after Clear")
	}
}
