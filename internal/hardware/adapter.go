package hardware

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"parcel-locker-backend/config"
	"parcel-locker-backend/internal/station"
)

// Broker is the pub/sub transport the adapter runs on.
type Broker interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Publish(ctx context.Context, topic string, payload []byte) error
}

type message struct {
	topic      string
	payload    []byte
	receivedAt time.Time
}

// Adapter ingests hardware reports into the station cache and publishes
// commands back to the stations. It is the only writer of the cache.
type Adapter struct {
	topics   config.TopicsConfig
	broker   Broker
	cache    *station.Cache
	messages chan message
	timeout  time.Duration
	dropped  atomic.Int64
	now      func() time.Time
}

// NewAdapter creates an adapter with a bounded inbound queue.
func NewAdapter(cfg config.MQTTConfig, broker Broker, cache *station.Cache) *Adapter {
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Adapter{
		topics:   cfg.Topics,
		broker:   broker,
		cache:    cache,
		messages: make(chan message, size),
		timeout:  cfg.CommandTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers the adapter on the detail topic. Messages are queued
// until Run consumes them.
func (a *Adapter) Subscribe() error {
	if err := a.broker.Subscribe(a.topics.Detail, a.enqueue); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", a.topics.Detail, err)
	}
	log.Printf("Subscribed to hardware topic %s", a.topics.Detail)
	return nil
}

// Run consumes queued messages until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) {
	log.Println("Starting hardware ingest loop...")
	for {
		select {
		case <-ctx.Done():
			log.Println("Hardware ingest loop shutting down.")
			return
		case m := <-a.messages:
			a.handle(m)
		}
	}
}

// Dropped returns how many inbound messages were discarded because the queue was full.
func (a *Adapter) Dropped() int64 {
	return a.dropped.Load()
}

// enqueue runs on the transport's delivery goroutine and must not block it.
func (a *Adapter) enqueue(topic string, payload []byte) {
	m := message{topic: topic, payload: payload, receivedAt: a.now()}
	select {
	case a.messages <- m:
	default:
		n := a.dropped.Add(1)
		log.Printf("Warning: ingest queue full, dropping message on %s (%d dropped so far)", topic, n)
	}
}

func (a *Adapter) handle(m message) {
	switch m.topic {
	case a.topics.Detail:
		snap, skipped, err := DecodeReport(m.payload, m.receivedAt)
		if err != nil {
			log.Printf("Error decoding report on %s: %v", m.topic, err)
			return
		}
		for _, e := range skipped {
			log.Printf("Warning: station %s: skipping %v", snap.Name, e)
		}
		a.cache.Upsert(snap)
	default:
		log.Printf("Warning: dropping message on unknown topic %s", m.topic)
	}
}

// SendCommand publishes an open/load/unload command for one locker. Delivery is
// fire-and-forget; an error means the broker did not accept the publish in time.
func (a *Adapter) SendCommand(ctx context.Context, action Action, stationName string, nickname int) error {
	topic, err := a.topicFor(action)
	if err != nil {
		return err
	}
	payload, err := EncodeCommand(stationName, nickname)
	if err != nil {
		return err
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if err := a.broker.Publish(ctx, topic, payload); err != nil {
		log.Printf("Error publishing %s command for station %s locker %d: %v", action, stationName, nickname, err)
		return fmt.Errorf("publish %s command: %w", action, err)
	}
	log.Printf("Published %s command for station %s locker %d", action, stationName, nickname)
	return nil
}

func (a *Adapter) topicFor(action Action) (string, error) {
	switch action {
	case ActionOpen:
		return a.topics.Open, nil
	case ActionLoad:
		return a.topics.Load, nil
	case ActionUnload:
		return a.topics.Unload, nil
	default:
		return "", fmt.Errorf("unknown action %s", action)
	}
}
