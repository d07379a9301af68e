package diagram

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates the mutation an Action carries.
type Kind string

const (
	KindAddNode      Kind = "ADD_NODE"
	KindMoveNode     Kind = "MOVE_NODE"
	KindDeleteNode   Kind = "DELETE_NODE"
	KindRestoreNode  Kind = "RESTORE_NODE"
	KindAddEdge      Kind = "ADD_EDGE"
	KindDeleteEdge   Kind = "DELETE_EDGE"
	KindAddStroke    Kind = "ADD_STROKE"
	KindDeleteStroke Kind = "DELETE_STROKE"
	KindAddText      Kind = "ADD_TEXT"
	KindMoveText     Kind = "MOVE_TEXT"
	KindUpdateText   Kind = "UPDATE_TEXT"
	KindDeleteText   Kind = "DELETE_TEXT"
)

var (
	ErrUnknownKind    = errors.New("unknown action kind")
	ErrInvalidPayload = errors.New("invalid action payload")
)

// Action is one authored diagram mutation. The payload carries enough entity data to
// both apply and invert the mutation without looking at prior state.
type Action struct {
	ID      string
	UserID  string
	TS      int64
	Payload Payload
}

// Payload is the closed set of mutation variants. Only this package can add a
// variant, and each must provide both halves of the apply/invert table.
type Payload interface {
	Kind() Kind
	// Target is the id of the entity the mutation is about.
	Target() string

	apply(State) State
	inverse() Payload
}

func (a Action) Kind() Kind {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Kind()
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TextBody is the field bundle UPDATE_TEXT overwrites.
type TextBody struct {
	Value  string  `json:"value"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type AddNode struct {
	Node Node `json:"node"`
}

type MoveNode struct {
	NodeID string   `json:"nodeId"`
	From   Position `json:"from"`
	To     Position `json:"to"`
}

// DeleteNode also carries the edges attached to the node at deletion time.
type DeleteNode struct {
	Node  Node   `json:"node"`
	Edges []Edge `json:"edges"`
}

type RestoreNode struct {
	Node  Node   `json:"node"`
	Edges []Edge `json:"edges"`
}

type AddEdge struct {
	Edge Edge `json:"edge"`
}

type DeleteEdge struct {
	Edge Edge `json:"edge"`
}

type AddStroke struct {
	Stroke Stroke `json:"stroke"`
}

type DeleteStroke struct {
	Stroke Stroke `json:"stroke"`
}

type AddText struct {
	Text Text `json:"text"`
}

type MoveText struct {
	TextID string   `json:"textId"`
	From   Position `json:"from"`
	To     Position `json:"to"`
}

type UpdateText struct {
	TextID string   `json:"textId"`
	From   TextBody `json:"from"`
	To     TextBody `json:"to"`
}

type DeleteText struct {
	Text Text `json:"text"`
}

func (AddNode) Kind() Kind      { return KindAddNode }
func (MoveNode) Kind() Kind     { return KindMoveNode }
func (DeleteNode) Kind() Kind   { return KindDeleteNode }
func (RestoreNode) Kind() Kind  { return KindRestoreNode }
func (AddEdge) Kind() Kind      { return KindAddEdge }
func (DeleteEdge) Kind() Kind   { return KindDeleteEdge }
func (AddStroke) Kind() Kind    { return KindAddStroke }
func (DeleteStroke) Kind() Kind { return KindDeleteStroke }
func (AddText) Kind() Kind      { return KindAddText }
func (MoveText) Kind() Kind     { return KindMoveText }
func (UpdateText) Kind() Kind   { return KindUpdateText }
func (DeleteText) Kind() Kind   { return KindDeleteText }

func (p AddNode) Target() string      { return p.Node.ID }
func (p MoveNode) Target() string     { return p.NodeID }
func (p DeleteNode) Target() string   { return p.Node.ID }
func (p RestoreNode) Target() string  { return p.Node.ID }
func (p AddEdge) Target() string      { return p.Edge.ID }
func (p DeleteEdge) Target() string   { return p.Edge.ID }
func (p AddStroke) Target() string    { return p.Stroke.ID }
func (p DeleteStroke) Target() string { return p.Stroke.ID }
func (p AddText) Target() string      { return p.Text.ID }
func (p MoveText) Target() string     { return p.TextID }
func (p UpdateText) Target() string   { return p.TextID }
func (p DeleteText) Target() string   { return p.Text.ID }

type wireAction struct {
	ID      string          `json:"id"`
	UserID  string          `json:"userId"`
	TS      int64           `json:"ts"`
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	if a.Payload == nil {
		return nil, fmt.Errorf("marshal action %s: %w", a.ID, ErrInvalidPayload)
	}
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireAction{
		ID:      a.ID,
		UserID:  a.UserID,
		TS:      a.TS,
		Type:    a.Payload.Kind(),
		Payload: payload,
	})
}

// UnmarshalJSON decodes the variant named by "type". Unrecognised kinds return
// ErrUnknownKind so that callers can ignore them without treating the frame as
// corrupt.
func (a *Action) UnmarshalJSON(data []byte) error {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decode, ok := decoders[w.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
	}
	if len(w.Payload) == 0 {
		return fmt.Errorf("%s: %w: missing payload", w.Type, ErrInvalidPayload)
	}
	p, err := decode(w.Payload)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", w.Type, ErrInvalidPayload, err)
	}
	if p.Target() == "" {
		return fmt.Errorf("%s: %w: missing entity id", w.Type, ErrInvalidPayload)
	}
	*a = Action{ID: w.ID, UserID: w.UserID, TS: w.TS, Payload: p}
	return nil
}

var decoders = map[Kind]func(json.RawMessage) (Payload, error){
	KindAddNode:      decodePayload[AddNode],
	KindMoveNode:     decodePayload[MoveNode],
	KindDeleteNode:   decodePayload[DeleteNode],
	KindRestoreNode:  decodePayload[RestoreNode],
	KindAddEdge:      decodePayload[AddEdge],
	KindDeleteEdge:   decodePayload[DeleteEdge],
	KindAddStroke:    decodePayload[AddStroke],
	KindDeleteStroke: decodePayload[DeleteStroke],
	KindAddText:      decodePayload[AddText],
	KindMoveText:     decodePayload[MoveText],
	KindUpdateText:   decodePayload[UpdateText],
	KindDeleteText:   decodePayload[DeleteText],
}

func decodePayload[P Payload](raw json.RawMessage) (Payload, error) {
	var p P
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}
