package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/Vandu-Shre/synapse/internal/diagram"
)

// Represents the type of a wire message
type MessageType string

const (
	// Client asks to attach the connection to a room
	TypeJoinRoom MessageType = "join-room"

	// A diagram mutation, in both directions
	TypeAction MessageType = "diagram:action"

	// Client asks the server to undo or redo its own last action
	TypeUndo MessageType = "diagram:undo"
	TypeRedo MessageType = "diagram:redo"

	// Full snapshot, server to joining client only
	TypeRoomState MessageType = "room:state"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Inbound is the envelope of a client message. Action stays raw until the handler
// knows it needs it.
type Inbound struct {
	Type   MessageType
	RoomID string
	UserID string
	Action json.RawMessage
}

// Parse peeks at the envelope fields without decoding the whole frame.
func Parse(data []byte) (Inbound, error) {
	if !gjson.ValidBytes(data) {
		return Inbound{}, ErrMalformed
	}

	fields := gjson.GetManyBytes(data, "type", "roomId", "userId", "action")
	if fields[0].Type != gjson.String {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	in := Inbound{
		Type:   MessageType(fields[0].String()),
		RoomID: fields[1].String(),
		UserID: fields[2].String(),
	}
	if fields[3].Exists() {
		in.Action = json.RawMessage(fields[3].Raw)
	}

	switch in.Type {
	case TypeJoinRoom, TypeAction, TypeUndo, TypeRedo:
		return in, nil
	default:
		return in, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
}

// DecodeAction decodes the action carried by a diagram:action message. Unknown kinds
// surface as diagram.ErrUnknownKind.
func (in Inbound) DecodeAction() (diagram.Action, error) {
	var a diagram.Action
	if len(in.Action) == 0 {
		return a, fmt.Errorf("%w: missing action", ErrMalformed)
	}
	if err := json.Unmarshal(in.Action, &a); err != nil {
		if errors.Is(err, diagram.ErrUnknownKind) {
			return a, err
		}
		return a, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return a, nil
}

type RoomStateMessage struct {
	Type    MessageType                        `json:"type"`
	Nodes   diagram.Collection[diagram.Node]   `json:"nodes"`
	Edges   diagram.Collection[diagram.Edge]   `json:"edges"`
	Strokes diagram.Collection[diagram.Stroke] `json:"strokes"`
	Texts   diagram.Collection[diagram.Text]   `json:"texts"`
}

type ActionMessage struct {
	Type   MessageType    `json:"type"`
	RoomID string         `json:"roomId"`
	Action diagram.Action `json:"action"`
}

// EncodeRoomState renders a full snapshot of s.
func EncodeRoomState(s diagram.State) ([]byte, error) {
	return json.Marshal(RoomStateMessage{
		Type:    TypeRoomState,
		Nodes:   s.Nodes,
		Edges:   s.Edges,
		Strokes: s.Strokes,
		Texts:   s.Texts,
	})
}

// EncodeAction renders a diagram:action broadcast.
func EncodeAction(roomID string, a diagram.Action) ([]byte, error) {
	return json.Marshal(ActionMessage{Type: TypeAction, RoomID: roomID, Action: a})
}
