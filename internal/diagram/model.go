package diagram

import "encoding/json"

// NodeType names the kind of box a node renders as. The set is open: clients may
// introduce new types without a server change.
type NodeType string

const (
	NodeReact   NodeType = "react"
	NodeDB      NodeType = "db"
	NodeAPI     NodeType = "api"
	NodeService NodeType = "service"
	NodeQueue   NodeType = "queue"
	NodeCache   NodeType = "cache"
	NodeCloud   NodeType = "cloud"
)

// Port is the side of a node an edge attaches to
type Port string

const (
	PortTop    Port = "top"
	PortRight  Port = "right"
	PortBottom Port = "bottom"
	PortLeft   Port = "left"
)

type StrokeTool string

const (
	ToolPen         StrokeTool = "pen"
	ToolHighlighter StrokeTool = "highlighter"
)

type Node struct {
	ID     string   `json:"id"`
	Type   NodeType `json:"type"`
	Label  string   `json:"label"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
}

type Edge struct {
	ID         string `json:"id"`
	FromNodeID string `json:"fromNodeId"`
	FromPort   Port   `json:"fromPort"`
	ToNodeID   string `json:"toNodeId"`
	ToPort     Port   `json:"toPort"`
}

// Touches reports whether either endpoint of the edge is nodeID.
func (e Edge) Touches(nodeID string) bool {
	return e.FromNodeID == nodeID || e.ToNodeID == nodeID
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Stroke struct {
	ID      string     `json:"id"`
	Tool    StrokeTool `json:"tool"`
	Points  []Point    `json:"points"`
	Width   float64    `json:"width"`
	Opacity float64    `json:"opacity"`
}

// MarshalJSON always emits points as an array, even for a stroke decoded without any.
func (s Stroke) MarshalJSON() ([]byte, error) {
	type plain Stroke
	if s.Points == nil {
		s.Points = []Point{}
	}
	return json.Marshal(plain(s))
}

type Text struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Value  string  `json:"value"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (n Node) Key() string   { return n.ID }
func (e Edge) Key() string   { return e.ID }
func (s Stroke) Key() string { return s.ID }
func (t Text) Key() string   { return t.ID }
