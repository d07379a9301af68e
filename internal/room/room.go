package room

import (
	"github.com/Vandu-Shre/synapse/internal/diagram"
	"github.com/Vandu-Shre/synapse/internal/history"
)

// A collaborative diagram session
type Room struct {
	ID string

	state   diagram.State
	history *history.Manager
	peers   map[Peer]string // peer -> user id

	drain    Timer
	drainGen uint64
}

// Creates an empty room with the given ID
func newRoom(id string, historyLimit int) *Room {
	return &Room{
		ID:      id,
		history: history.NewManager(historyLimit),
		peers:   make(map[Peer]string),
	}
}

// Returns the current diagram content. The returned value is never mutated.
func (r *Room) State() diagram.State {
	return r.state
}

// Returns the undo/redo stacks of the room
func (r *Room) History() *history.Manager {
	return r.history
}

// Returns the number of attached connections
func (r *Room) PeerCount() int {
	return len(r.peers)
}

// Draining reports whether the room is empty and waiting for its cleanup timer.
func (r *Room) Draining() bool {
	return r.drain != nil
}

func (r *Room) apply(a diagram.Action) {
	r.state = diagram.Apply(r.state, a)
}

// Applies a newly authored action and records it on the author's undo stack
func (r *Room) submit(userID string, a diagram.Action) {
	r.apply(a)
	r.history.Record(userID, a)
}

func (r *Room) undo(userID string) (diagram.Action, bool) {
	inv, ok := r.history.Undo(userID)
	if !ok {
		return diagram.Action{}, false
	}
	r.apply(inv)
	return inv, true
}

func (r *Room) redo(userID string) (diagram.Action, bool) {
	a, ok := r.history.Redo(userID)
	if !ok {
		return diagram.Action{}, false
	}
	r.apply(a)
	return a, true
}

// Stops any pending cleanup. A timer callback that already fired and is still
// queued sees a newer generation and does nothing.
func (r *Room) cancelDrain() {
	if r.drain != nil {
		r.drain.Stop()
		r.drain = nil
	}
	r.drainGen++
}
