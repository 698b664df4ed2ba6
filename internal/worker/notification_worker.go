package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SP23-BSE-106/grain/internal/events"
	"github.com/SP23-BSE-106/grain/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// Publisher delivers an event to an external sink.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// EventForwarder moves auth events off the request path: dispatcher
// handlers only enqueue, a single goroutine publishes.
type EventForwarder struct {
	publisher    Publisher
	queue        chan events.Event
	writeTimeout time.Duration
	logger       *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// NewEventForwarder builds a forwarder with a bounded queue.
func NewEventForwarder(publisher Publisher, queueSize int, logger *zap.Logger) *EventForwarder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventForwarder{
		publisher:    publisher,
		queue:        make(chan events.Event, queueSize),
		writeTimeout: defaultWriteTimeout,
		logger:       logger.Named("event_forwarder"),
		done:         make(chan struct{}),
	}
}

// Register subscribes the forwarder to every auth event.
func (f *EventForwarder) Register(d events.Dispatcher) {
	events.SubscribeAll(d, f.enqueue)
}

func (f *EventForwarder) enqueue(_ context.Context, event events.Event) error {
	select {
	case <-f.done:
		return nil
	default:
	}
	select {
	case f.queue <- event:
	default:
		f.logger.Warn("event queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID))
	}
	return nil
}

// Start launches the publishing loop. It drains the queue after ctx is
// cancelled or Stop is called.
func (f *EventForwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case event := <-f.queue:
				f.publish(event)
			case <-ctx.Done():
				f.drain()
				return
			case <-f.done:
				f.drain()
				return
			}
		}
	}()
}

// Stop signals the loop and waits for the queue to drain.
func (f *EventForwarder) Stop() {
	f.stopOnce.Do(func() { close(f.done) })
	f.wg.Wait()
}

func (f *EventForwarder) drain() {
	for {
		select {
		case event := <-f.queue:
			f.publish(event)
		default:
			return
		}
	}
}

func (f *EventForwarder) publish(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), f.writeTimeout)
	defer cancel()
	if err := f.publisher.Publish(ctx, event); err != nil {
		f.logger.Warn("event publish failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}
