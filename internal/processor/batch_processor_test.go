package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"estatehub/server/config"
	"estatehub/server/internal/database"
	"estatehub/server/internal/models"
	"estatehub/server/internal/queue"
)

func testConfig() config.ImportConfig {
	return config.ImportConfig{
		QueueSize:      4,
		MaxBatchSize:   2,
		ProcessorCount: 2,
		MaxRetries:     0,
		RetryDelay:     time.Millisecond,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func listing(agencyID uint, ref string, price float64) *models.Property {
	return &models.Property{
		Title:       "Imported " + ref,
		Type:        models.PropertyTypeApartment,
		ListingType: models.ListingTypeSale,
		Status:      models.PropertyStatusActive,
		Price:       price,
		City:        "Lisbon",
		AgencyID:    &agencyID,
		ExternalRef: &ref,
	}
}

func countImported(t *testing.T, db *database.Database, agencyID uint) int64 {
	t.Helper()
	n, err := db.CountProperties(context.Background(), models.PropertyFilter{AgencyID: &agencyID})
	require.NoError(t, err)
	return n
}

func TestProcessBatch_StoresAndUpdates(t *testing.T) {
	db := newTestDB(t)
	p := NewBatchProcessor(db, nil, testConfig(), quietLogger())
	ctx := context.Background()

	stored, err := p.ProcessBatch(ctx, []*models.Property{
		listing(1, "a", 100000), listing(1, "b", 200000), listing(1, "c", 300000),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stored)
	assert.Equal(t, int64(3), countImported(t, db, 1))

	// same refs refresh the existing rows
	stored, err = p.ProcessBatch(ctx, []*models.Property{listing(1, "a", 150000)})
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	assert.Equal(t, int64(3), countImported(t, db, 1))

	items, err := db.FindProperties(ctx, models.PropertyFilter{AgencyID: uintPtr(1)}, "price", 0)
	require.NoError(t, err)
	assert.Equal(t, 150000.0, items[0].Price)
	assert.Equal(t, "a", *items[0].ExternalRef)

	// another agency may reuse the reference
	_, err = p.ProcessBatch(ctx, []*models.Property{listing(2, "a", 1)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countImported(t, db, 2))
}

func uintPtr(v uint) *uint { return &v }

func TestProcessBatch_RejectsListingsWithoutReference(t *testing.T) {
	db := newTestDB(t)
	p := NewBatchProcessor(db, nil, testConfig(), quietLogger())

	bad := listing(1, "x", 1)
	bad.ExternalRef = nil
	stored, err := p.ProcessBatch(context.Background(), []*models.Property{listing(1, "ok", 1), bad})
	require.Error(t, err)
	assert.Equal(t, 0, stored)
	assert.Contains(t, err.Error(), "failed to process batch after 1 attempts")
}

func TestProcessBatch_RetriesFailedTransactions(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MaxRetries = 1
	p := NewBatchProcessor(database.New(gdb, quietLogger()), nil, cfg, quietLogger())

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "properties"`).WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()
	}

	_, err = p.ProcessBatch(context.Background(), []*models.Property{listing(1, "a", 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessBatch_RetryHonoursContext(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	cfg.MaxRetries = 3
	cfg.RetryDelay = time.Hour
	p := NewBatchProcessor(db, nil, cfg, quietLogger())

	bad := listing(1, "x", 1)
	bad.AgencyID = nil
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.ProcessBatch(ctx, []*models.Property{bad})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBatchProcessor_ConsumesQueue(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	q := queue.NewListingQueue(cfg.QueueSize, quietLogger())
	p := NewBatchProcessor(db, q, cfg, quietLogger())
	p.Start()
	q.Start()

	for i := 0; i < 3; i++ {
		batch := []*models.Property{
			listing(5, fmt.Sprintf("r%d-a", i), 1),
			listing(5, fmt.Sprintf("r%d-b", i), 2),
		}
		require.NoError(t, q.Push(batch))
	}

	require.NoError(t, q.Close())
	select {
	case <-q.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain")
	}
	p.Stop()

	assert.Equal(t, int64(6), countImported(t, db, 5))

	// stopping twice is fine and late batches are refused
	p.Stop()
	assert.Error(t, p.dispatch([]*models.Property{listing(5, "late", 1)}))
}
