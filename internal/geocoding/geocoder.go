package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"estatehub/server/config"
	"estatehub/server/internal/models"
)

const cacheFileName = "geocode_cache.json"

// ErrNoResults is returned when the geocoder knows no location for an address.
var ErrNoResults = errors.New("no geocoding results")

// Store is the part of the database the backfill needs.
type Store interface {
	PropertiesMissingCoordinates(ctx context.Context, limit int) ([]models.Property, error)
	SetCoordinates(ctx context.Context, id uint, lat, lng float64) error
}

type Geocoder struct {
	logger    *logrus.Logger
	endpoint  string
	cacheDir  string
	cache     map[string][]float64
	cacheLock sync.RWMutex
	client    *http.Client

	// Nominatim allows one request per second
	limiter *rate.Limiter
}

func NewGeocoder(cfg config.GeocodingConfig, logger *logrus.Logger) *Geocoder {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		logger.WithError(err).Warn("Could not create geocode cache directory")
	}

	g := &Geocoder{
		logger:   logger,
		endpoint: cfg.Endpoint,
		cacheDir: cfg.CacheDir,
		cache:    make(map[string][]float64),
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
	g.loadCache()
	return g
}

func (g *Geocoder) loadCache() {
	data, err := os.ReadFile(filepath.Join(g.cacheDir, cacheFileName))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.logger.Warnf("Could not load geocode cache: %v", err)
		}
		return
	}
	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.Errorf("Failed to parse geocode cache: %v", err)
		return
	}
	g.logger.Infof("Loaded %d cached addresses", len(g.cache))
}

func (g *Geocoder) saveCache() {
	g.cacheLock.RLock()
	data, err := json.Marshal(g.cache)
	g.cacheLock.RUnlock()
	if err != nil {
		g.logger.Errorf("Failed to marshal geocode cache: %v", err)
		return
	}
	if err := os.WriteFile(filepath.Join(g.cacheDir, cacheFileName), data, 0o644); err != nil {
		g.logger.Errorf("Failed to save geocode cache: %v", err)
	}
}

type nominatimResponse []struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func cacheKey(address, city string) string {
	return strings.ToLower(strings.TrimSpace(address)) + "|" + strings.ToLower(strings.TrimSpace(city))
}

// GeocodeAddress resolves an address to latitude and longitude, consulting
// the on-disk cache first.
func (g *Geocoder) GeocodeAddress(ctx context.Context, address, city string) (float64, float64, error) {
	key := cacheKey(address, city)
	fullAddress := fmt.Sprintf("%s, %s", address, city)

	g.cacheLock.RLock()
	coords, ok := g.cache[key]
	g.cacheLock.RUnlock()
	if ok {
		if len(coords) != 2 {
			return 0, 0, errors.New("invalid cached coordinates")
		}
		g.logger.WithFields(logrus.Fields{
			"address": fullAddress,
			"source":  "cache",
		}).Debug("Found coordinates in cache")
		return coords[0], coords[1], nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return 0, 0, err
	}

	params := url.Values{
		"q":      []string{fullAddress},
		"format": []string{"json"},
		"limit":  []string{"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "estatehub/1.0")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocoding service returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, 0, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result) == 0 {
		return 0, 0, fmt.Errorf("%w for address: %s", ErrNoResults, fullAddress)
	}

	lat, err := strconv.ParseFloat(result[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", result[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(result[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", result[0].Lon, err)
	}

	g.logger.WithFields(logrus.Fields{
		"address":   fullAddress,
		"latitude":  lat,
		"longitude": lon,
		"source":    "nominatim",
	}).Info("Successfully geocoded address")

	g.cacheLock.Lock()
	g.cache[key] = []float64{lat, lon}
	g.cacheLock.Unlock()

	return lat, lon, nil
}

// Backfill geocodes up to limit listings that have an address but no
// coordinates and returns how many were updated. Addresses that cannot be
// resolved are skipped.
func (g *Geocoder) Backfill(ctx context.Context, store Store, limit int) (int, error) {
	properties, err := store.PropertiesMissingCoordinates(ctx, limit)
	if err != nil {
		return 0, err
	}
	defer g.saveCache()

	updated := 0
	for _, p := range properties {
		lat, lon, err := g.GeocodeAddress(ctx, p.Address, p.City)
		if err != nil {
			if ctx.Err() != nil {
				return updated, ctx.Err()
			}
			g.logger.WithError(err).WithField("property_id", p.ID).Warn("Could not geocode property")
			continue
		}
		if err := store.SetCoordinates(ctx, p.ID, lat, lon); err != nil {
			return updated, err
		}
		updated++
	}

	g.logger.WithFields(logrus.Fields{
		"candidates": len(properties),
		"updated":    updated,
	}).Info("Geocode backfill finished")
	return updated, nil
}
