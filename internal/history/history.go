// Package history keeps independent undo and redo stacks for every user of a room.
//
// Undo is linear per user: it reverts that user's most recent actions in order, no
// matter what other users did to the same entities in between. Any newly recorded
// action clears the user's redo stack, including actions on unrelated entities.
package history

import (
	"github.com/Vandu-Shre/synapse/internal/diagram"
)

type stacks struct {
	undo []diagram.Action
	redo []diagram.Action
}

// Manager is not safe for concurrent use; the room that owns it serialises access.
type Manager struct {
	limit  int
	byUser map[string]*stacks
}

// NewManager returns a Manager whose undo stacks keep at most limit actions per user.
// A limit of zero or less keeps everything.
func NewManager(limit int) *Manager {
	return &Manager{
		limit:  limit,
		byUser: make(map[string]*stacks),
	}
}

func (m *Manager) stacksFor(userID string) *stacks {
	st, ok := m.byUser[userID]
	if !ok {
		st = &stacks{}
		m.byUser[userID] = st
	}
	return st
}

// Record pushes a newly authored action onto the user's undo stack and clears the
// user's redo stack.
func (m *Manager) Record(userID string, a diagram.Action) {
	st := m.stacksFor(userID)
	st.undo = m.push(st.undo, a)
	st.redo = nil
}

// Undo pops the user's latest action and returns its inverse, authored by userID.
// The popped original moves to the redo stack. When the stack is empty, or the action
// has no inverse, nothing changes and ok is false.
func (m *Manager) Undo(userID string) (inverse diagram.Action, ok bool) {
	st, found := m.byUser[userID]
	if !found || len(st.undo) == 0 {
		return diagram.Action{}, false
	}

	last := st.undo[len(st.undo)-1]
	inv := diagram.Invert(last, userID)
	if inv == nil {
		return diagram.Action{}, false
	}

	st.undo = st.undo[:len(st.undo)-1]
	st.redo = append(st.redo, last)
	return *inv, true
}

// Redo pops the user's latest undone action and puts it back on the undo stack. The
// original action is returned unchanged for re-application.
func (m *Manager) Redo(userID string) (diagram.Action, bool) {
	st, found := m.byUser[userID]
	if !found || len(st.redo) == 0 {
		return diagram.Action{}, false
	}

	last := st.redo[len(st.redo)-1]
	st.redo = st.redo[:len(st.redo)-1]
	st.undo = m.push(st.undo, last)
	return last, true
}

func (m *Manager) push(stack []diagram.Action, a diagram.Action) []diagram.Action {
	stack = append(stack, a)
	if m.limit > 0 && len(stack) > m.limit {
		trimmed := make([]diagram.Action, m.limit)
		copy(trimmed, stack[len(stack)-m.limit:])
		stack = trimmed
	}
	return stack
}

// Undos returns a copy of the user's undo stack, oldest first.
func (m *Manager) Undos(userID string) []diagram.Action {
	st, ok := m.byUser[userID]
	if !ok {
		return nil
	}
	return append([]diagram.Action(nil), st.undo...)
}

// Redos returns a copy of the user's redo stack, oldest first.
func (m *Manager) Redos(userID string) []diagram.Action {
	st, ok := m.byUser[userID]
	if !ok {
		return nil
	}
	return append([]diagram.Action(nil), st.redo...)
}

// Users returns how many users have stacks allocated.
func (m *Manager) Users() int {
	return len(m.byUser)
}
