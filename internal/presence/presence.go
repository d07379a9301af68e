// Package presence mirrors live room membership into Redis so other processes can see
// who is connected where. Each room is a hash of user id to open connection count.
package presence

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Vandu-Shre/synapse/internal/room"
)

const opTimeout = 2 * time.Second

// Decrements a member and removes the field once it reaches zero.
var leaveScript = redis.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call("HDEL", KEYS[1], ARGV[1])
end
return n
`)

type opKind int

const (
	opJoin opKind = iota
	opLeave
	opClear
)

type op struct {
	kind   opKind
	roomID string
	userID string
}

// Tracker is a room.Observer. Registry callbacks only enqueue; a single worker applies
// the writes in order so a join is never overtaken by the matching leave.
type Tracker struct {
	room.NopObserver

	rdb    redis.UniversalClient
	prefix string
	logger *slog.Logger

	queue  chan op
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewTracker(rdb redis.UniversalClient, prefix string, queueSize int, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	t := &Tracker{
		rdb:    rdb,
		prefix: prefix,
		logger: logger.With(slog.String("component", "presence")),
		queue:  make(chan op, queueSize),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Tracker) roomKey(roomID string) string {
	if t.prefix == "" {
		return "presence:room:" + roomID
	}
	return t.prefix + ":presence:room:" + roomID
}

func (t *Tracker) MemberJoined(roomID, userID string) {
	t.enqueue(op{kind: opJoin, roomID: roomID, userID: userID})
}

func (t *Tracker) MemberLeft(roomID, userID string) {
	t.enqueue(op{kind: opLeave, roomID: roomID, userID: userID})
}

func (t *Tracker) RoomClosed(roomID string) {
	t.enqueue(op{kind: opClear, roomID: roomID})
}

func (t *Tracker) enqueue(o op) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return
	}
	select {
	case t.queue <- o:
	default:
		t.logger.Warn("presence queue full, dropping update", slog.String("room", o.roomID))
	}
}

func (t *Tracker) run() {
	defer close(t.done)
	for o := range t.queue {
		if err := t.apply(o); err != nil {
			t.logger.Warn("presence update failed",
				slog.String("room", o.roomID),
				slog.String("user", o.userID),
				slog.Any("error", err))
		}
	}
}

func (t *Tracker) apply(o op) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := t.roomKey(o.roomID)
	switch o.kind {
	case opJoin:
		return t.rdb.HIncrBy(ctx, key, o.userID, 1).Err()
	case opLeave:
		err := leaveScript.Run(ctx, t.rdb, []string{key}, o.userID).Err()
		if err == redis.Nil {
			return nil
		}
		return err
	case opClear:
		return t.rdb.Del(ctx, key).Err()
	}
	return nil
}

// Members returns the connection count per user for a room.
func (t *Tracker) Members(ctx context.Context, roomID string) (map[string]int, error) {
	fields, err := t.rdb.HGetAll(ctx, t.roomKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	members := make(map[string]int, len(fields))
	for user, raw := range fields {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			continue
		}
		members[user] = n
	}
	return members, nil
}

// Rooms lists the room ids that currently have a presence hash.
func (t *Tracker) Rooms(ctx context.Context) ([]string, error) {
	base := t.roomKey("")
	var rooms []string
	iter := t.rdb.Scan(ctx, 0, base+"*", 0).Iterator()
	for iter.Next(ctx) {
		if id := strings.TrimPrefix(iter.Val(), base); id != "" {
			rooms = append(rooms, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

// Close applies what is already queued and stops the worker. The Redis client is
// owned by the caller.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	<-t.done
}
