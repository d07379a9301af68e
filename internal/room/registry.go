package room

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vandu-Shre/synapse/internal/diagram"
	"github.com/Vandu-Shre/synapse/internal/protocol"
)

var (
	ErrNotJoined    = errors.New("connection has not joined a room")
	ErrRoomMismatch = errors.New("message room does not match joined room")
)

const DefaultGracePeriod = 60 * time.Second

// Peer is one live connection as seen by the registry.
type Peer interface {
	ID() string
	// Send queues msg for delivery and reports whether it was accepted.
	Send(msg []byte) bool
}

type Timer interface {
	Stop() bool
}

// Scheduler runs fire once after d unless the returned Timer is stopped first.
type Scheduler func(d time.Duration, fire func()) Timer

func afterFunc(d time.Duration, fire func()) Timer {
	return time.AfterFunc(d, fire)
}

// Cause says why an action was applied to a room.
type Cause string

const (
	CauseSubmit Cause = "submit"
	CauseUndo   Cause = "undo"
	CauseRedo   Cause = "redo"
)

// Observer is told about lifecycle and content changes after they happen. Calls are
// made from the goroutine that drives the registry and must not block.
type Observer interface {
	RoomOpened(roomID string)
	RoomClosed(roomID string)
	MemberJoined(roomID, userID string)
	MemberLeft(roomID, userID string)
	ActionApplied(roomID string, a diagram.Action, cause Cause)
}

type Options struct {
	GracePeriod  time.Duration
	HistoryLimit int
	Scheduler    Scheduler
	Logger       *slog.Logger
	Observers    []Observer
}

type membership struct {
	roomID string
	userID string
}

// Registry owns every live room and the mapping of connections to rooms.
//
// A Registry is not safe for concurrent use. The caller processes one event at a time
// and must route timer callbacks produced by the Scheduler back onto that same
// sequence.
type Registry struct {
	rooms     map[string]*Room
	members   map[Peer]membership
	grace     time.Duration
	limit     int
	schedule  Scheduler
	logger    *slog.Logger
	observers []Observer
}

func NewRegistry(opts Options) *Registry {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Scheduler == nil {
		opts.Scheduler = afterFunc
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		rooms:     make(map[string]*Room),
		members:   make(map[Peer]membership),
		grace:     opts.GracePeriod,
		limit:     opts.HistoryLimit,
		schedule:  opts.Scheduler,
		logger:    opts.Logger,
		observers: opts.Observers,
	}
}

// Create returns the room with the given id, creating it empty if needed.
func (r *Registry) Create(roomID string) *Room {
	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}
	rm := newRoom(roomID, r.limit)
	r.rooms[roomID] = rm
	r.logger.Info("room created", slog.String("room", roomID))
	for _, o := range r.observers {
		o.RoomOpened(roomID)
	}
	return rm
}

func (r *Registry) Get(roomID string) (*Room, bool) {
	rm, ok := r.rooms[roomID]
	return rm, ok
}

// Destroy drops a room with its state and history. Attached peers are detached.
func (r *Registry) Destroy(roomID string) {
	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	rm.cancelDrain()
	for p := range rm.peers {
		delete(r.members, p)
	}
	delete(r.rooms, roomID)
	r.logger.Info("room destroyed",
		slog.String("room", roomID),
		slog.Bool("empty", rm.state.Empty()),
		slog.Int("users", rm.history.Users()))
	for _, o := range r.observers {
		o.RoomClosed(roomID)
	}
}

// Join attaches p to roomID as userID and sends it a full snapshot. A peer already in
// another room is detached from it first.
func (r *Registry) Join(p Peer, roomID, userID string) *Room {
	if m, ok := r.members[p]; ok && m.roomID != roomID {
		r.detach(p)
	}

	rm := r.Create(roomID)
	if rm.Draining() {
		r.logger.Info("room resumed within grace period", slog.String("room", roomID))
	}
	rm.cancelDrain()

	if prev, ok := rm.peers[p]; !ok || prev != userID {
		rm.peers[p] = userID
		for _, o := range r.observers {
			if ok {
				o.MemberLeft(roomID, prev)
			}
			o.MemberJoined(roomID, userID)
		}
	}
	r.members[p] = membership{roomID: roomID, userID: userID}

	r.logger.Info("peer joined room",
		slog.String("room", roomID),
		slog.String("user", userID),
		slog.String("conn", p.ID()),
		slog.Int("peers", len(rm.peers)))

	snapshot, err := protocol.EncodeRoomState(rm.state)
	if err != nil {
		r.logger.Error("encode room state", slog.String("room", roomID), slog.Any("error", err))
		return rm
	}
	r.deliver(p, snapshot)
	return rm
}

// Disconnect detaches p from its room, if any.
func (r *Registry) Disconnect(p Peer) {
	r.detach(p)
}

func (r *Registry) detach(p Peer) {
	m, ok := r.members[p]
	if !ok {
		return
	}
	delete(r.members, p)

	rm, ok := r.rooms[m.roomID]
	if !ok {
		return
	}
	delete(rm.peers, p)
	for _, o := range r.observers {
		o.MemberLeft(m.roomID, m.userID)
	}

	r.logger.Info("peer left room",
		slog.String("room", m.roomID),
		slog.String("user", m.userID),
		slog.String("conn", p.ID()),
		slog.Int("remaining", len(rm.peers)))

	if len(rm.peers) == 0 {
		r.armDrain(rm)
	}
}

// Arming always replaces a previous timer, so a room is never scheduled twice.
func (r *Registry) armDrain(rm *Room) {
	rm.cancelDrain()
	gen := rm.drainGen
	roomID := rm.ID
	rm.drain = r.schedule(r.grace, func() { r.expire(roomID, gen) })
	r.logger.Debug("room draining", slog.String("room", roomID), slog.Duration("grace", r.grace))
}

// Fires from the drain timer. Safe against rooms that were already deleted,
// re-armed or re-joined.
func (r *Registry) expire(roomID string, gen uint64) {
	rm, ok := r.rooms[roomID]
	if !ok || rm.drainGen != gen || len(rm.peers) > 0 {
		return
	}
	rm.drain = nil
	r.Destroy(roomID)
}

func (r *Registry) memberOf(p Peer, roomID string) (*Room, membership, error) {
	m, ok := r.members[p]
	if !ok {
		return nil, m, ErrNotJoined
	}
	if m.roomID != roomID {
		return nil, m, fmt.Errorf("%w: joined %q, got %q", ErrRoomMismatch, m.roomID, roomID)
	}
	return r.rooms[roomID], m, nil
}

// Submit applies a newly authored action, records it on the author's undo stack and
// relays it to every other peer in the room. An action without an author is
// attributed to the user the peer joined as.
func (r *Registry) Submit(p Peer, roomID string, a diagram.Action) error {
	rm, m, err := r.memberOf(p, roomID)
	if err != nil {
		return err
	}
	if a.UserID == "" {
		a.UserID = m.userID
	}

	rm.submit(a.UserID, a)
	r.broadcast(rm, a, p)
	r.notify(roomID, a, CauseSubmit)
	return nil
}

// Undo reverts the user's latest action and broadcasts the inverse to the whole room,
// the requester included. An empty stack is a no-op.
func (r *Registry) Undo(p Peer, roomID, userID string) error {
	rm, m, err := r.memberOf(p, roomID)
	if err != nil {
		return err
	}
	if userID == "" {
		userID = m.userID
	}

	inv, ok := rm.undo(userID)
	if !ok {
		r.logger.Debug("nothing to undo", slog.String("room", roomID), slog.String("user", userID))
		return nil
	}
	r.broadcast(rm, inv, nil)
	r.notify(roomID, inv, CauseUndo)
	return nil
}

// Redo re-applies the user's latest undone action and broadcasts it to the whole room.
func (r *Registry) Redo(p Peer, roomID, userID string) error {
	rm, m, err := r.memberOf(p, roomID)
	if err != nil {
		return err
	}
	if userID == "" {
		userID = m.userID
	}

	a, ok := rm.redo(userID)
	if !ok {
		r.logger.Debug("nothing to redo", slog.String("room", roomID), slog.String("user", userID))
		return nil
	}
	r.broadcast(rm, a, nil)
	r.notify(roomID, a, CauseRedo)
	return nil
}

// Sends a diagram:action to every peer of rm except skip.
func (r *Registry) broadcast(rm *Room, a diagram.Action, skip Peer) {
	msg, err := protocol.EncodeAction(rm.ID, a)
	if err != nil {
		r.logger.Error("encode action",
			slog.String("room", rm.ID),
			slog.String("kind", string(a.Kind())),
			slog.Any("error", err))
		return
	}
	for p := range rm.peers {
		if p != skip {
			r.deliver(p, msg)
		}
	}
}

func (r *Registry) deliver(p Peer, msg []byte) {
	if !p.Send(msg) {
		r.logger.Warn("outbound buffer full, message dropped", slog.String("conn", p.ID()))
	}
}

func (r *Registry) notify(roomID string, a diagram.Action, cause Cause) {
	for _, o := range r.observers {
		o.ActionApplied(roomID, a, cause)
	}
}

// RoomOf returns the room p has joined.
func (r *Registry) RoomOf(p Peer) (string, bool) {
	m, ok := r.members[p]
	return m.roomID, ok
}

// Returns the number of live rooms, draining ones included
func (r *Registry) RoomCount() int {
	return len(r.rooms)
}

// Returns the number of peers attached to a room
func (r *Registry) PeerCount() int {
	return len(r.members)
}

// ActiveRooms maps every live room to its connection count.
func (r *Registry) ActiveRooms() map[string]int {
	out := make(map[string]int, len(r.rooms))
	for id, rm := range r.rooms {
		out[id] = len(rm.peers)
	}
	return out
}

// NopObserver implements Observer with no-ops, for embedding.
type NopObserver struct{}

func (NopObserver) RoomOpened(string) {}
func (NopObserver) RoomClosed(string) {}
func (NopObserver) MemberJoined(string, string) {}
func (NopObserver) MemberLeft(string, string) {}
func (NopObserver) ActionApplied(string, diagram.Action, Cause) {}
