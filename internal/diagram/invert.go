package diagram

import (
	"time"

	"github.com/google/uuid"
)

// Overridable in tests.
var (
	newActionID = uuid.NewString
	now         = time.Now
)

// Invert builds the action that undoes a. The result is a new action with a fresh id
// and timestamp, authored by userID rather than by a's author. It returns nil when a
// has no defined inverse.
func Invert(a Action, userID string) *Action {
	if a.Payload == nil {
		return nil
	}
	p := a.Payload.inverse()
	if p == nil {
		return nil
	}
	return &Action{
		ID:      newActionID(),
		UserID:  userID,
		TS:      now().UnixMilli(),
		Payload: p,
	}
}

func (p AddNode) inverse() Payload {
	return DeleteNode{Node: p.Node, Edges: []Edge{}}
}

func (p MoveNode) inverse() Payload {
	return MoveNode{NodeID: p.NodeID, From: p.To, To: p.From}
}

func (p DeleteNode) inverse() Payload {
	return RestoreNode{Node: p.Node, Edges: cloneEdges(p.Edges)}
}

// A second undo must not try to re-remove edges that are already gone, so the
// deletion carries no edges. The cascade in apply still clears anything attached.
func (p RestoreNode) inverse() Payload {
	return DeleteNode{Node: p.Node, Edges: []Edge{}}
}

func (p AddEdge) inverse() Payload      { return DeleteEdge{Edge: p.Edge} }
func (p DeleteEdge) inverse() Payload   { return AddEdge{Edge: p.Edge} }
func (p AddStroke) inverse() Payload    { return DeleteStroke{Stroke: p.Stroke} }
func (p DeleteStroke) inverse() Payload { return AddStroke{Stroke: p.Stroke} }
func (p AddText) inverse() Payload      { return DeleteText{Text: p.Text} }
func (p DeleteText) inverse() Payload   { return AddText{Text: p.Text} }

func (p MoveText) inverse() Payload {
	return MoveText{TextID: p.TextID, From: p.To, To: p.From}
}

func (p UpdateText) inverse() Payload {
	return UpdateText{TextID: p.TextID, From: p.To, To: p.From}
}

func cloneEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}
