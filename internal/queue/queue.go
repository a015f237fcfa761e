package queue

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"estatehub/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// Handler consumes one batch of imported listings.
type Handler func(batch []*models.Property) error

// ListingQueue is an in-memory queue of imported listing batches
type ListingQueue struct {
	items    chan []*models.Property
	done     chan struct{}
	closed   bool
	started  bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []Handler
}

// NewListingQueue creates a queue buffering up to bufferSize batches
func NewListingQueue(bufferSize int, logger *logrus.Logger) *ListingQueue {
	if logger == nil {
		logger = logrus.New()
	}
	return &ListingQueue{
		items:  make(chan []*models.Property, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Push adds a batch without blocking
func (q *ListingQueue) Push(batch []*models.Property) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- batch:
		q.logger.WithField("batch_size", len(batch)).Debug("Pushed batch to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler that is called for each batch
func (q *ListingQueue) Subscribe(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins dispatching batches. Calling it more than once is a no-op.
func (q *ListingQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	go q.process()
}

func (q *ListingQueue) process() {
	defer close(q.done)
	for batch := range q.items {
		q.processBatch(batch)
	}
}

func (q *ListingQueue) processBatch(batch []*models.Property) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(batch); err != nil {
			q.logger.WithError(err).WithField("batch_size", len(batch)).Error("Handler failed to process batch")
		}
	}
}

// Close stops accepting batches. Batches already queued are still dispatched;
// Done is closed once they are.
func (q *ListingQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.items)
	if !q.started {
		q.started = true
		go q.process()
	}
	return nil
}

// Done is closed when the queue is closed and drained.
func (q *ListingQueue) Done() <-chan struct{} {
	return q.done
}

// Cap returns the number of batches the queue can buffer
func (q *ListingQueue) Cap() int {
	return cap(q.items)
}

// Len returns the number of batches waiting in the queue
func (q *ListingQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *ListingQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
