package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	// notifyEnqueued counts requests accepted into the queue.
	notifyEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_enqueued_total",
		Help: "Notification requests accepted by the dispatcher queue.",
	})

	// notifyDropped counts requests rejected because the queue was full or
	// the dispatcher was closed.
	notifyDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Notification requests dropped before delivery.",
	})

	// notifyDelivered counts successful deliveries per sink.
	notifyDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Notifications delivered, by sink.",
	}, []string{"sink"})

	// notifyFailed counts deliveries that exhausted their retries, per sink.
	notifyFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Notifications that could not be delivered after all retries, by sink.",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(notifyEnqueued, notifyDropped, notifyDelivered, notifyFailed)
}

// ErrClosed is returned by Close when called on a closed dispatcher.
var ErrClosed = errors.New("notify: dispatcher closed")

// Options tunes a Dispatcher. Zero values fall back to small safe defaults.
type Options struct {
	QueueSize      int
	Workers        int
	MaxAttempts    int
	RetryBackoff   time.Duration
	DeliverTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 100 * time.Millisecond
	}
	if o.DeliverTimeout <= 0 {
		o.DeliverTimeout = 5 * time.Second
	}
	return o
}

// Dispatcher is an asynchronous Notifier backed by a bounded queue.
type Dispatcher struct {
	opts  Options
	sinks []Sink
	queue chan Request
	abort chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the worker pool and returns the dispatcher. Callers
// must call Close to drain the queue.
func NewDispatcher(opts Options, sinks ...Sink) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts:  opts,
		sinks: sinks,
		queue: make(chan Request, opts.QueueSize),
		abort: make(chan struct{}),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify enqueues req without blocking. A full queue drops the request.
func (d *Dispatcher) Notify(_ context.Context, req Request) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		notifyDropped.Inc()
		log.Warn().Str("component", "notify").Str("type", string(req.Type)).Msg("dispatcher closed; notification dropped")
		return
	}
	select {
	case d.queue <- req:
		notifyEnqueued.Inc()
	default:
		notifyDropped.Inc()
		log.Warn().
			Str("component", "notify").
			Str("type", string(req.Type)).
			Str("user_id", req.UserID).
			Int("queue_size", d.opts.QueueSize).
			Msg("notification queue full; dropped")
	}
}

// Close stops accepting requests and waits for queued ones to be delivered.
// If ctx ends first, pending retries are abandoned and ctx.Err() is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		close(d.abort)
		err = ctx.Err()
	}
	for _, s := range d.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if cerr := c.Close(); cerr != nil {
				log.Error().Err(cerr).Str("sink", s.Name()).Msg("close notification sink")
			}
		}
	}
	return err
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for req := range d.queue {
		for _, s := range d.sinks {
			d.deliver(s, req)
		}
	}
}

func (d *Dispatcher) deliver(s Sink, req Request) {
	backoff := d.opts.RetryBackoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.DeliverTimeout)
		err := s.Deliver(ctx, req)
		cancel()
		if err == nil {
			notifyDelivered.WithLabelValues(s.Name()).Inc()
			return
		}
		if attempt >= d.opts.MaxAttempts {
			notifyFailed.WithLabelValues(s.Name()).Inc()
			log.Error().Err(err).
				Str("component", "notify").
				Str("sink", s.Name()).
				Str("type", string(req.Type)).
				Str("user_id", req.UserID).
				Int("attempts", attempt).
				Msg("notification delivery failed")
			return
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-d.abort:
			notifyFailed.WithLabelValues(s.Name()).Inc()
			return
		}
	}
}
