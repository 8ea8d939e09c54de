package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultQueueSize   = 256
	defaultWorkers     = 2
	defaultSendTimeout = 10 * time.Second
)

type renderer interface {
	Render(n Notification) (Message, error)
}

type deliveryMetrics interface {
	IncNotification(kind, result string)
}

// DispatcherParams wires the async notification dispatcher.
type DispatcherParams struct {
	Logger      *logger.Logger
	Templates   renderer
	Sender      Sender
	Metrics     deliveryMetrics
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

type envelope struct {
	ctx context.Context
	n   Notification
}

// Dispatcher is a Sink backed by a bounded queue and a fixed worker pool.
// A full queue drops the notification with a warning.
type Dispatcher struct {
	logg      *logger.Logger
	templates renderer
	sender    Sender
	metrics   deliveryMetrics
	timeout   time.Duration
	workers   int

	queue     chan envelope
	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	wg        sync.WaitGroup
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Templates == nil {
		return nil, fmt.Errorf("template store required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("sender required")
	}
	queueSize := params.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	timeout := params.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{
		logg:      params.Logger,
		templates: params.Templates,
		sender:    params.Sender,
		metrics:   params.Metrics,
		timeout:   timeout,
		workers:   workers,
		queue:     make(chan envelope, queueSize),
	}, nil
}

// Start launches the worker goroutines. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
	})
}

// Close stops accepting notifications and waits for queued ones to be sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

// Notify enqueues n without blocking.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	logCtx := d.logg.WithFields(ctx, map[string]any{
		"notification_kind": string(n.Kind),
		"match_id":          n.MatchID.String(),
	})
	if d.closed {
		d.logg.Warn(logCtx, "notification dropped: dispatcher closed")
		d.count(n, "dropped")
		return
	}
	select {
	case d.queue <- envelope{ctx: context.WithoutCancel(ctx), n: n}:
	default:
		d.logg.Warn(logCtx, "notification dropped: queue full")
		d.count(n, "dropped")
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for env := range d.queue {
		d.deliver(env.ctx, env.n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"notification_kind": string(n.Kind),
		"match_id":          n.MatchID.String(),
		"request_id":        n.RequestID.String(),
	})

	msg, err := d.templates.Render(n)
	if err != nil {
		d.logg.Error(logCtx, "render notification", err)
		d.count(n, "failed")
		return
	}
	msg.ID = uuid.NewString()

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.sender.Send(sendCtx, msg); err != nil {
		d.logg.Error(logCtx, "send notification", err)
		d.count(n, "failed")
		return
	}
	d.count(n, "sent")
}

func (d *Dispatcher) count(n Notification, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.IncNotification(string(n.Kind), result)
}
