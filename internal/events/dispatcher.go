// Package events publishes room activity to Kafka. Publishing is best effort: events
// are queued locally and sent by a small worker pool, and are dropped when the queue
// is full or Kafka keeps failing.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/Vandu-Shre/synapse/internal/diagram"
	"github.com/Vandu-Shre/synapse/internal/room"
)

type Type string

const (
	TypeRoomOpened    Type = "room.opened"
	TypeRoomClosed    Type = "room.closed"
	TypeActionApplied Type = "action.applied"
)

type Event struct {
	Type   Type            `json:"type"`
	RoomID string          `json:"roomId"`
	UserID string          `json:"userId,omitempty"`
	Cause  room.Cause      `json:"cause,omitempty"`
	Kind   diagram.Kind    `json:"kind,omitempty"`
	Action json.RawMessage `json:"action,omitempty"`
	At     time.Time       `json:"at"`
}

type Options struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 10000
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxRetry < 0 {
		o.MaxRetry = 0
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 100 * time.Millisecond
	}
	if o.MaxBackoff < o.BaseBackoff {
		o.MaxBackoff = 2 * time.Second
	}
	return o
}

// Dispatcher is a room.Observer that turns lifecycle and action notifications into
// Kafka messages keyed by room id, so one room's events stay ordered in a partition.
type Dispatcher struct {
	room.NopObserver

	producer sarama.SyncProducer
	topic    string
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	queue  chan Event
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewDispatcher(producer sarama.SyncProducer, topic string, opts Options, logger *slog.Logger) *Dispatcher {
	d := newDispatcher(producer, topic, opts, logger)
	d.start()
	return d
}

func newDispatcher(producer sarama.SyncProducer, topic string, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Dispatcher{
		producer: producer,
		topic:    topic,
		opts:     opts,
		logger:   logger.With(slog.String("component", "events")),
		now:      time.Now,
		queue:    make(chan Event, opts.QueueSize),
	}
}

func (d *Dispatcher) start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

// Publish queues evt without blocking. It reports false when the event was dropped.
func (d *Dispatcher) Publish(evt Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.queue <- evt:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("event queue full, dropping event",
			slog.String("room", evt.RoomID), slog.String("type", string(evt.Type)))
		return false
	}
}

// Close stops accepting events, waits for the queue to drain and closes the producer.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("event dispatcher stopped",
		slog.Int64("sent", d.sent.Load()),
		slog.Int64("dropped", d.dropped.Load()),
		slog.Int64("failed", d.failed.Load()))
	return d.producer.Close()
}

func (d *Dispatcher) Sent() int64    { return d.sent.Load() }
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }
func (d *Dispatcher) Failed() int64  { return d.failed.Load() }

func (d *Dispatcher) RoomOpened(roomID string) {
	d.Publish(Event{Type: TypeRoomOpened, RoomID: roomID, At: d.now()})
}

func (d *Dispatcher) RoomClosed(roomID string) {
	d.Publish(Event{Type: TypeRoomClosed, RoomID: roomID, At: d.now()})
}

func (d *Dispatcher) ActionApplied(roomID string, a diagram.Action, cause room.Cause) {
	raw, err := json.Marshal(a)
	if err != nil {
		d.logger.Warn("encode action", slog.String("room", roomID), slog.Any("error", err))
		return
	}
	d.Publish(Event{
		Type:   TypeActionApplied,
		RoomID: roomID,
		UserID: a.UserID,
		Cause:  cause,
		Kind:   a.Kind(),
		Action: raw,
		At:     d.now(),
	})
}

func (d *Dispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *Dispatcher) sendWithRetry(workerID int, evt Event) {
	for attempt := 0; attempt <= d.opts.MaxRetry; attempt++ {
		err := d.sendOnce(evt)
		if err == nil {
			d.sent.Add(1)
			return
		}

		if attempt == d.opts.MaxRetry {
			d.failed.Add(1)
			d.logger.Error("kafka send failed, dropping event",
				slog.String("room", evt.RoomID),
				slog.String("type", string(evt.Type)),
				slog.Int("worker", workerID),
				slog.Any("error", err))
			return
		}

		backoff := d.opts.BaseBackoff * time.Duration(1<<attempt)
		if backoff > d.opts.MaxBackoff {
			backoff = d.opts.MaxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *Dispatcher) sendOnce(evt Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, _, err = d.producer.SendMessage(&sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.RoomID),
		Value: sarama.ByteEncoder(b),
	})
	return err
}
