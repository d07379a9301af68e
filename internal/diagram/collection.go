package diagram

import "encoding/json"

// Entity is anything stored in a Collection, addressed by its own id.
type Entity interface {
	Node | Edge | Stroke | Text
	Key() string
}

// Collection is an insertion-ordered set of entities keyed by id.
//
// A Collection is a value: every mutating method returns a new Collection and leaves
// the receiver untouched, so a State handed out as a snapshot never changes under the
// reader. An empty Collection is always the zero value.
//
// Every write copies the slice, so one Upsert or Update costs O(n) in the size of that
// collection and a stream of MOVE_NODE on a dense board pays for the node count on each
// move. Overwrites keep positions and share the index; inserts and removals rebuild it.
// An index map is never written after construction.
type Collection[T Entity] struct {
	items []T
	index map[string]int
}

func collectionOf[T Entity](items []T) Collection[T] {
	if len(items) == 0 {
		return Collection[T]{}
	}
	index := make(map[string]int, len(items))
	for i, it := range items {
		index[it.Key()] = i
	}
	return Collection[T]{items: items, index: index}
}

func (c Collection[T]) Len() int { return len(c.items) }

func (c Collection[T]) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

func (c Collection[T]) Get(id string) (T, bool) {
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// Items returns a copy of the entities in insertion order.
func (c Collection[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Upsert overwrites the entity with the same id in place, or appends it.
func (c Collection[T]) Upsert(v T) Collection[T] {
	items := c.Items()
	if i, ok := c.index[v.Key()]; ok {
		items[i] = v
		return Collection[T]{items: items, index: c.index}
	}
	return collectionOf(append(items, v))
}

// Update replaces the entity with the result of fn. Missing ids are a no-op.
func (c Collection[T]) Update(id string, fn func(T) T) Collection[T] {
	i, ok := c.index[id]
	if !ok {
		return c
	}
	items := c.Items()
	items[i] = fn(items[i])
	return Collection[T]{items: items, index: c.index}
}

func (c Collection[T]) Remove(id string) Collection[T] {
	if !c.Has(id) {
		return c
	}
	return c.RemoveWhere(func(v T) bool { return v.Key() == id })
}

// RemoveWhere drops every entity for which match returns true.
func (c Collection[T]) RemoveWhere(match func(T) bool) Collection[T] {
	kept := make([]T, 0, len(c.items))
	for _, it := range c.items {
		if !match(it) {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(c.items) {
		return c
	}
	return collectionOf(kept)
}

// MarshalJSON encodes the collection as an array in insertion order.
func (c Collection[T]) MarshalJSON() ([]byte, error) {
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

func (c *Collection[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	var out Collection[T]
	for _, it := range items {
		out = out.Upsert(it)
	}
	*c = out
	return nil
}
