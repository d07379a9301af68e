package diagram

import "reflect"

// State is the authoritative content of one room.
type State struct {
	Nodes   Collection[Node]   `json:"nodes"`
	Edges   Collection[Edge]   `json:"edges"`
	Strokes Collection[Stroke] `json:"strokes"`
	Texts   Collection[Text]   `json:"texts"`
}

// Empty reports whether the state holds no entities at all.
func (s State) Empty() bool {
	return s.Nodes.Len() == 0 && s.Edges.Len() == 0 && s.Strokes.Len() == 0 && s.Texts.Len() == 0
}

// Equal compares contents and order of every collection.
func (s State) Equal(o State) bool {
	return reflect.DeepEqual(s.Nodes.items, o.Nodes.items) &&
		reflect.DeepEqual(s.Edges.items, o.Edges.items) &&
		reflect.DeepEqual(s.Strokes.items, o.Strokes.items) &&
		reflect.DeepEqual(s.Texts.items, o.Texts.items)
}
