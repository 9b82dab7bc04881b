package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event emitted while engines run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Engine is the name of the emitting engine.
	Engine string `json:"engine,omitempty"`

	// Epoch is the epoch number, if applicable.
	Epoch int `json:"epoch,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for engine events.
const (
	EventTypeEpochStarted   = "epoch.started"
	EventTypeEpochCompleted = "epoch.completed"
	EventTypeEpochFailed    = "epoch.failed"
	EventTypeBatchCompleted = "batch.completed"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions. Subscribers are
// called one at a time, in publishing order.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.EnableAsync && cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}
	if ep.ctx.Err() != nil {
		return fmt.Errorf("event publisher stopped")
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishEpochStarted publishes an epoch started event.
func (ep *EventPublisher) PublishEpochStarted(runID, engine string, epoch int) error {
	return ep.Publish(Event{
		Type:    EventTypeEpochStarted,
		Source:  "engine",
		RunID:   runID,
		Engine:  engine,
		Epoch:   epoch,
		Message: fmt.Sprintf("Epoch %d of %s started", epoch, engine),
		Level:   EventLevelInfo,
	})
}

// PublishEpochCompleted publishes an epoch completed event.
func (ep *EventPublisher) PublishEpochCompleted(runID, engine string, epoch, batches int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeEpochCompleted,
		Source:  "engine",
		RunID:   runID,
		Engine:  engine,
		Epoch:   epoch,
		Message: fmt.Sprintf("Epoch %d of %s completed after %d batches", epoch, engine, batches),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"batches":  batches,
			"duration": duration.Seconds(),
		},
	})
}

// PublishEpochFailed publishes an epoch failed event.
func (ep *EventPublisher) PublishEpochFailed(runID, engine string, epoch int, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeEpochFailed,
		Source:  "engine",
		RunID:   runID,
		Engine:  engine,
		Epoch:   epoch,
		Message: fmt.Sprintf("Epoch %d of %s failed: %s", epoch, engine, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishBatchCompleted publishes a batch completed event.
func (ep *EventPublisher) PublishBatchCompleted(runID, engine string, epoch, batchNum, iteration int) error {
	return ep.Publish(Event{
		Type:    EventTypeBatchCompleted,
		Source:  "engine",
		RunID:   runID,
		Engine:  engine,
		Epoch:   epoch,
		Message: fmt.Sprintf("Batch %d of epoch %d completed", batchNum, epoch),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"batch_num": batchNum,
			"iteration": iteration,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers buffered events until shutdown, then drains the buffer.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering the buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// FilterByEngine creates a filter that only allows events from one engine.
func FilterByEngine(engine string) EventFilter {
	return func(event Event) bool {
		return event.Engine == engine
	}
}
