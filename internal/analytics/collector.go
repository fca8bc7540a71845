package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/kafka"
)

// Publisher delivers one event. *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// LocalPublisher feeds events straight into an Aggregator, for deployments
// without Kafka. Events still go through the JSON encoding used on the wire.
type LocalPublisher struct {
	handler kafka.MessageHandler
}

func NewLocalPublisher(agg *Aggregator) *LocalPublisher {
	return &LocalPublisher{handler: agg.Handler()}
}

func (p *LocalPublisher) Publish(ctx context.Context, event kafka.Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return err
	}
	return p.handler(ctx, []byte(event.Key), value)
}

// Collector buffers events and publishes them from a single goroutine so
// request handlers never wait on the broker.
type Collector struct {
	publisher Publisher
	eventCh   chan kafka.Event
	logger    *slog.Logger
	done      chan struct{}

	// mu guards closed and makes sends and close of eventCh exclusive.
	mu     sync.RWMutex
	closed bool
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan kafka.Event, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				if err := c.publisher.Publish(ctx, event); err != nil {
					c.logger.Error("failed to publish analytics event", "key", event.Key, "error", err)
				}
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// TrackSearch queues a search event. A nil Collector is a no-op.
func (c *Collector) TrackSearch(event SearchEvent) {
	if event.Type == "" {
		event.Type = EventSearch
		if event.Returned == 0 {
			event.Type = EventZeroResult
		}
	}
	c.track(kafka.Event{Key: string(event.Type), Value: event})
}

// TrackIndex queues a document-indexed event. A nil Collector is a no-op.
func (c *Collector) TrackIndex(event IndexEvent) {
	event.Type = EventIndexDoc
	c.track(kafka.Event{Key: string(event.Type), Value: event})
}

func (c *Collector) track(event kafka.Event) {
	if c == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "key", event.Key)
	}
}

// Close stops accepting events and waits for the queue to be published.
// Events tracked after Close are discarded. Close is idempotent.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			if err := c.publisher.Publish(context.Background(), event); err != nil {
				c.logger.Error("failed to publish remaining event", "error", err)
			}
		default:
			return
		}
	}
}
