// Package events fans notifications and activity records out of the process.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TypeNotification = "notification"
	TypeActivity     = "activity"
)

type Event struct {
	Type       string         `json:"type"`
	Collection string         `json:"collection"`
	Record     map[string]any `json:"record"`
	At         time.Time      `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type nop struct{}

func (nop) Publish(context.Context, Event) error { return nil }
func (nop) Close() error                         { return nil }

// Nop drops every event.
func Nop() Publisher { return nop{} }

// Kafka writes events as JSON messages keyed by event type.
type Kafka struct {
	w *kafka.Writer
}

// NewKafka builds an async writer; brokers is a comma separated host:port list.
func NewKafka(brokers, topic string) (*Kafka, error) {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("kafka: no brokers")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	return &Kafka{w: &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		Async:                  true,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}}, nil
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{Key: []byte(e.Type), Value: b, Time: e.At})
}

func (k *Kafka) Close() error { return k.w.Close() }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
