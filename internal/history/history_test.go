package history

import (
	"testing"

	"github.com/Vandu-Shre/synapse/internal/diagram"
)

func addNode(id, user string) diagram.Action {
	return diagram.Action{
		ID:      "add-" + id,
		UserID:  user,
		TS:      1,
		Payload: diagram.AddNode{Node: diagram.Node{ID: id, X: 10, Y: 10}},
	}
}

func ids(actions []diagram.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.ID
	}
	return out
}

func TestUndoOnEmptyStack(t *testing.T) {
	m := NewManager(0)

	if _, ok := m.Undo("u1"); ok {
		t.Error("Undo on an unknown user should be a no-op")
	}
	if _, ok := m.Redo("u1"); ok {
		t.Error("Redo on an unknown user should be a no-op")
	}
	if m.Users() != 0 {
		t.Errorf("Lookups should not allocate stacks, got %d users", m.Users())
	}
}

func TestUndoMovesOriginalToRedo(t *testing.T) {
	m := NewManager(0)
	m.Record("u1", addNode("n1", "u1"))

	inv, ok := m.Undo("u1")
	if !ok {
		t.Fatal("Expected undo to succeed")
	}
	if inv.Kind() != diagram.KindDeleteNode {
		t.Errorf("Expected DELETE_NODE inverse, got %s", inv.Kind())
	}
	if inv.UserID != "u1" {
		t.Errorf("Expected inverse authored by u1, got %s", inv.UserID)
	}

	if len(m.Undos("u1")) != 0 {
		t.Error("Undo stack should be empty")
	}
	redo := m.Redos("u1")
	if len(redo) != 1 || redo[0].ID != "add-n1" {
		t.Errorf("Expected redo stack [add-n1], got %v", ids(redo))
	}
}

func TestTwoAddsOneUndo(t *testing.T) {
	m := NewManager(0)
	m.Record("u1", addNode("n1", "u1"))
	m.Record("u1", addNode("n2", "u1"))

	inv, _ := m.Undo("u1")
	if inv.Payload.Target() != "n2" {
		t.Errorf("Expected undo of the most recent add, got target %s", inv.Payload.Target())
	}

	if got := ids(m.Redos("u1")); len(got) != 1 || got[0] != "add-n2" {
		t.Errorf("Expected redo stack [add-n2], got %v", got)
	}
	if got := ids(m.Undos("u1")); len(got) != 1 || got[0] != "add-n1" {
		t.Errorf("Expected undo stack [add-n1], got %v", got)
	}
}

func TestRedoRestoresOriginal(t *testing.T) {
	m := NewManager(0)
	orig := addNode("n1", "u1")
	m.Record("u1", orig)
	m.Undo("u1")

	again, ok := m.Redo("u1")
	if !ok {
		t.Fatal("Expected redo to succeed")
	}
	if again.ID != orig.ID || again.Kind() != diagram.KindAddNode {
		t.Errorf("Redo should return the original action, got %s %s", again.ID, again.Kind())
	}
	if len(m.Redos("u1")) != 0 {
		t.Error("Redo stack should be empty after redo")
	}
	if got := ids(m.Undos("u1")); len(got) != 1 || got[0] != orig.ID {
		t.Errorf("Expected undo stack [%s], got %v", orig.ID, got)
	}
}

func TestRecordClearsRedo(t *testing.T) {
	m := NewManager(0)
	m.Record("u1", addNode("n1", "u1"))
	m.Record("u1", addNode("n2", "u1"))
	m.Undo("u1")
	m.Undo("u1")

	if len(m.Redos("u1")) != 2 {
		t.Fatalf("Expected 2 redo entries, got %d", len(m.Redos("u1")))
	}

	m.Record("u1", addNode("unrelated", "u1"))
	if len(m.Redos("u1")) != 0 {
		t.Error("Any new action must clear the redo stack")
	}
}

func TestStackIsolation(t *testing.T) {
	m := NewManager(0)
	m.Record("a", addNode("n1", "a"))
	m.Record("b", addNode("n2", "b"))
	m.Record("b", addNode("n3", "b"))
	m.Undo("b")

	m.Undo("a")
	m.Undo("a")

	if got := ids(m.Undos("b")); len(got) != 1 || got[0] != "add-n2" {
		t.Errorf("A's undo touched B's undo stack: %v", got)
	}
	if got := ids(m.Redos("b")); len(got) != 1 || got[0] != "add-n3" {
		t.Errorf("A's undo touched B's redo stack: %v", got)
	}
	if got := ids(m.Redos("a")); len(got) != 1 || got[0] != "add-n1" {
		t.Errorf("Expected A's redo stack [add-n1], got %v", got)
	}
}

func TestLimitDropsOldest(t *testing.T) {
	m := NewManager(3)
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5"} {
		m.Record("u1", addNode(id, "u1"))
	}

	got := ids(m.Undos("u1"))
	want := []string{"add-n3", "add-n4", "add-n5"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}
}
