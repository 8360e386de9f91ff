package notify

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Domenick1991/restobooking/internal/logger"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Notifier is what the services depend on.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

const publishTimeout = 10 * time.Second

// Dispatcher queues events in memory and publishes them from one goroutine.
// When the queue is full the event is dropped and logged.
type Dispatcher struct {
	publisher Publisher
	topic     string
	queue     chan Event
	log       *logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewDispatcher(publisher Publisher, topic string, size int, log *logger.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		publisher: publisher,
		topic:     topic,
		queue:     make(chan Event, size),
		log:       log,
		stop:      make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
}

func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if event.Email == "" && event.Phone == "" {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.log.Warn(d.log.WithFields(ctx, map[string]any{
			"event_type": string(event.Type),
			"code":       event.ConfirmationCode,
		}), "notification queue full, dropping event")
	}
}

// Close stops the worker after it has published what is already queued.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stop) })
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.publish(event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := d.publisher.Publish(ctx, d.topic, strconv.Itoa(event.ConfirmationCode), event); err != nil {
		d.log.Error(d.log.WithFields(ctx, map[string]any{
			"event_type": string(event.Type),
			"event_id":   event.ID,
		}), "publish notification", err)
	}
}

var _ Notifier = (*Dispatcher)(nil)
