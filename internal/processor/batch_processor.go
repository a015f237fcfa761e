package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"estatehub/server/config"
	"estatehub/server/internal/database"
	"estatehub/server/internal/metrics"
	"estatehub/server/internal/models"
	"estatehub/server/internal/queue"
)

// BatchProcessor upserts imported listing batches
type BatchProcessor struct {
	db     *database.Database
	logger *logrus.Logger
	config config.ImportConfig
	queue  *queue.ListingQueue

	jobs      chan []*models.Property
	waitGroup sync.WaitGroup
	mu        sync.Mutex
	stopped   bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewBatchProcessor creates a processor fed by q. q may be nil when batches
// are only processed synchronously.
func NewBatchProcessor(db *database.Database, q *queue.ListingQueue, cfg config.ImportConfig, logger *logrus.Logger) *BatchProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		db:     db,
		queue:  q,
		config: cfg,
		logger: logger,
		jobs:   make(chan []*models.Property),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the workers and subscribes them to the queue
func (p *BatchProcessor) Start() {
	workers := p.config.ProcessorCount
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.waitGroup.Add(1)
		go p.processLoop()
	}
	if p.queue != nil {
		p.queue.Subscribe(p.dispatch)
	}
}

// dispatch hands a batch to the next free worker
func (p *BatchProcessor) dispatch(batch []*models.Property) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return fmt.Errorf("processor stopped, dropping batch of %d listings", len(batch))
	}
	select {
	case p.jobs <- batch:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Stop waits for in-flight batches and shuts the workers down
func (p *BatchProcessor) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.waitGroup.Wait()
	p.cancel()
}

func (p *BatchProcessor) processLoop() {
	defer p.waitGroup.Done()
	for batch := range p.jobs {
		if _, err := p.ProcessBatch(p.ctx, batch); err != nil {
			p.logger.WithError(err).Error("Dropping listing batch")
		}
	}
}

// ProcessBatch upserts the batch in chunks of MaxBatchSize, each in its own
// transaction with retry. It returns the number of listings stored.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, batch []*models.Property) (int, error) {
	size := p.config.MaxBatchSize
	if size <= 0 {
		size = len(batch)
	}
	stored := 0
	for start := 0; start < len(batch); start += size {
		end := min(start+size, len(batch))
		if err := p.processChunk(ctx, batch[start:end]); err != nil {
			metrics.RecordImport("failed", len(batch)-start)
			return stored, err
		}
		stored += end - start
	}
	metrics.RecordImport("stored", stored)
	return stored, nil
}

func (p *BatchProcessor) processChunk(ctx context.Context, chunk []*models.Property) error {
	var err error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch processing, attempt %d of %d", attempt, p.config.MaxRetries)
			select {
			case <-time.After(p.config.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = p.db.Transaction(ctx, func(tx *database.Database) error {
			if err := database.UpsertProperties(tx.GetDB(), chunk); err != nil {
				return fmt.Errorf("failed to upsert listing batch: %w", err)
			}
			return nil
		})
		if err == nil {
			p.logger.WithField("batch_size", len(chunk)).Info("Stored listing batch")
			return nil
		}

		p.logger.WithError(err).Error("Batch processing failed")
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", p.config.MaxRetries+1, err)
}
