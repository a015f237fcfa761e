package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"estatehub/server/config"
	"estatehub/server/internal/database"
	"estatehub/server/internal/models"
)

func newTestGeocoder(t *testing.T, handler http.HandlerFunc) (*Geocoder, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	g := NewGeocoder(config.GeocodingConfig{Endpoint: srv.URL, CacheDir: t.TempDir()}, logger)
	g.limiter = rate.NewLimiter(rate.Inf, 1)
	return g, &calls
}

func nominatim(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("q") {
	case "Rua Augusta 1, Lisbon":
		_, _ = w.Write([]byte(`[{"lat":"38.7100","lon":"-9.1366"}]`))
	default:
		_, _ = w.Write([]byte(`[]`))
	}
}

func TestGeocodeAddress(t *testing.T) {
	g, calls := newTestGeocoder(t, nominatim)
	ctx := context.Background()

	lat, lon, err := g.GeocodeAddress(ctx, "Rua Augusta 1", "Lisbon")
	require.NoError(t, err)
	assert.InDelta(t, 38.71, lat, 1e-9)
	assert.InDelta(t, -9.1366, lon, 1e-9)

	// second lookup is served from the cache
	_, _, err = g.GeocodeAddress(ctx, "rua augusta 1 ", "LISBON")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	_, _, err = g.GeocodeAddress(ctx, "Nowhere 9", "Lisbon")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestGeocodeAddress_ServiceError(t *testing.T) {
	g, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, _, err := g.GeocodeAddress(context.Background(), "Rua Augusta 1", "Lisbon")
	assert.ErrorContains(t, err, "status 429")
}

func TestCachePersistsAcrossInstances(t *testing.T) {
	g, _ := newTestGeocoder(t, nominatim)
	_, _, err := g.GeocodeAddress(context.Background(), "Rua Augusta 1", "Lisbon")
	require.NoError(t, err)
	g.saveCache()

	_, err = os.Stat(filepath.Join(g.cacheDir, cacheFileName))
	require.NoError(t, err)

	reloaded := NewGeocoder(config.GeocodingConfig{Endpoint: "http://127.0.0.1:1", CacheDir: g.cacheDir}, nil)
	lat, _, err := reloaded.GeocodeAddress(context.Background(), "Rua Augusta 1", "Lisbon")
	require.NoError(t, err)
	assert.InDelta(t, 38.71, lat, 1e-9)
}

func TestBackfill(t *testing.T) {
	db, err := database.NewTestDB()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	known := &models.Property{Title: "Known", Type: models.PropertyTypeApartment, ListingType: models.ListingTypeSale,
		Status: models.PropertyStatusActive, Price: 1, Address: "Rua Augusta 1", City: "Lisbon"}
	unknown := &models.Property{Title: "Unknown", Type: models.PropertyTypeApartment, ListingType: models.ListingTypeSale,
		Status: models.PropertyStatusActive, Price: 1, Address: "Nowhere 9", City: "Lisbon"}
	require.NoError(t, db.CreateProperty(ctx, known))
	require.NoError(t, db.CreateProperty(ctx, unknown))

	g, _ := newTestGeocoder(t, nominatim)
	updated, err := g.Backfill(ctx, db, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	got, err := db.GetProperty(ctx, known.ID)
	require.NoError(t, err)
	require.True(t, got.HasCoordinates())
	assert.InDelta(t, 38.71, *got.Latitude, 1e-9)

	remaining, err := db.PropertiesMissingCoordinates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, unknown.ID, remaining[0].ID)
}
