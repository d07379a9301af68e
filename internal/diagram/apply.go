package diagram

// Apply returns the state that results from applying a to s. It never mutates s and
// never fails: references to entities that no longer exist are skipped, and an action
// without a payload leaves the state unchanged.
func Apply(s State, a Action) State {
	if a.Payload == nil {
		return s
	}
	return a.Payload.apply(s)
}

func (p AddNode) apply(s State) State {
	s.Nodes = s.Nodes.Upsert(p.Node)
	return s
}

func (p MoveNode) apply(s State) State {
	s.Nodes = s.Nodes.Update(p.NodeID, func(n Node) Node {
		n.X, n.Y = p.To.X, p.To.Y
		return n
	})
	return s
}

// The edge cascade is part of the deletion itself and runs whether or not the node
// was still present.
func (p DeleteNode) apply(s State) State {
	id := p.Node.ID
	s.Nodes = s.Nodes.Remove(id)
	s.Edges = s.Edges.RemoveWhere(func(e Edge) bool { return e.Touches(id) })
	return s
}

func (p RestoreNode) apply(s State) State {
	s.Nodes = s.Nodes.Upsert(p.Node)
	for _, e := range p.Edges {
		s.Edges = s.Edges.Upsert(e)
	}
	return s
}

// No referential check: an edge may name nodes that do not exist.
func (p AddEdge) apply(s State) State {
	s.Edges = s.Edges.Upsert(p.Edge)
	return s
}

func (p DeleteEdge) apply(s State) State {
	s.Edges = s.Edges.Remove(p.Edge.ID)
	return s
}

func (p AddStroke) apply(s State) State {
	s.Strokes = s.Strokes.Upsert(p.Stroke)
	return s
}

func (p DeleteStroke) apply(s State) State {
	s.Strokes = s.Strokes.Remove(p.Stroke.ID)
	return s
}

func (p AddText) apply(s State) State {
	s.Texts = s.Texts.Upsert(p.Text)
	return s
}

func (p MoveText) apply(s State) State {
	s.Texts = s.Texts.Update(p.TextID, func(t Text) Text {
		t.X, t.Y = p.To.X, p.To.Y
		return t
	})
	return s
}

func (p UpdateText) apply(s State) State {
	s.Texts = s.Texts.Update(p.TextID, func(t Text) Text {
		t.Value, t.Width, t.Height = p.To.Value, p.To.Width, p.To.Height
		return t
	})
	return s
}

func (p DeleteText) apply(s State) State {
	s.Texts = s.Texts.Remove(p.Text.ID)
	return s
}
