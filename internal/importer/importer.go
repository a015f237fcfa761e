package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/metrics"
	"estatehub/server/internal/models"
	"estatehub/server/internal/queue"
)

const maxFeedSize = 10 << 20

// Result summarises one import run.
type Result struct {
	Parsed  int       `json:"parsed"`
	Skipped int       `json:"skipped"`
	Queued  int       `json:"queued"`
	Stored  int       `json:"stored"`
	Errors  []Skipped `json:"errors,omitempty"`
}

// Store persists a batch synchronously.
type Store interface {
	ProcessBatch(ctx context.Context, batch []*models.Property) (int, error)
}

type Importer struct {
	queue     *queue.ListingQueue
	store     Store
	batchSize int
	client    *http.Client
	logger    *logrus.Logger
}

// New builds an importer. Enqueue needs q, Run needs store.
func New(q *queue.ListingQueue, store Store, batchSize int, logger *logrus.Logger) *Importer {
	if logger == nil {
		logger = logrus.New()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Importer{
		queue:     q,
		store:     store,
		batchSize: batchSize,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

func (i *Importer) parse(r io.Reader, agencyID uint) ([]*models.Property, *Result, error) {
	if agencyID == 0 {
		return nil, nil, apperr.BadRequest("agency is required")
	}
	listings, skipped, err := Parse(io.LimitReader(r, maxFeedSize), agencyID)
	if err != nil {
		return nil, nil, apperr.BadRequest("unreadable listing feed: %v", err)
	}
	metrics.RecordImport("skipped", len(skipped))

	log := i.logger.WithFields(logrus.Fields{"agency_id": agencyID, "parsed": len(listings), "skipped": len(skipped)})
	for _, s := range skipped {
		log.WithFields(logrus.Fields{"ref": s.Ref, "index": s.Index}).Debug("Skipped listing card: " + s.Reason)
	}
	log.Info("Parsed listing feed")
	return listings, &Result{Parsed: len(listings), Skipped: len(skipped), Errors: skipped}, nil
}

func (i *Importer) batches(listings []*models.Property) [][]*models.Property {
	var out [][]*models.Property
	for start := 0; start < len(listings); start += i.batchSize {
		out = append(out, listings[start:min(start+i.batchSize, len(listings))])
	}
	return out
}

// Enqueue parses the feed and hands the listings to the background queue.
// A full queue is reported as a conflict with the listings queued so far.
func (i *Importer) Enqueue(ctx context.Context, r io.Reader, agencyID uint) (*Result, error) {
	listings, res, err := i.parse(r, agencyID)
	if err != nil {
		return nil, err
	}
	for _, batch := range i.batches(listings) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := i.queue.Push(batch); err != nil {
			if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
				return res, apperr.Conflict("import queue unavailable after %d listings: %v", res.Queued, err)
			}
			return res, err
		}
		res.Queued += len(batch)
		metrics.RecordImport("queued", len(batch))
	}
	return res, nil
}

// Run parses the feed and stores the listings before returning.
func (i *Importer) Run(ctx context.Context, r io.Reader, agencyID uint) (*Result, error) {
	listings, res, err := i.parse(r, agencyID)
	if err != nil {
		return nil, err
	}
	for _, batch := range i.batches(listings) {
		n, err := i.store.ProcessBatch(ctx, batch)
		res.Stored += n
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// Fetch downloads a feed and runs it synchronously.
func (i *Importer) Fetch(ctx context.Context, url string, agencyID uint) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "EstateHub Importer/1.0")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	return i.Run(ctx, resp.Body, agencyID)
}
