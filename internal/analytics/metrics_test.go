package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatehub/server/internal/apperr"
)

func TestParseDays(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 30, false},
		{"7", 7, false},
		{"365", 365, false},
		{"0", 0, true},
		{"366", 0, true},
		{"-1", 0, true},
		{"week", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseDays(tt.raw)
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperr.ErrBadRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrend(t *testing.T) {
	assert.Equal(t, 50.0, Trend(15, 10))
	assert.Equal(t, -33.3, Trend(20, 30))
	assert.Equal(t, 100.0, Trend(5, 0))
	assert.Equal(t, 0.0, Trend(0, 0))
	assert.Equal(t, -100.0, Trend(0, 8))
}

func TestRate(t *testing.T) {
	assert.Equal(t, 33.3, Rate(1, 3))
	assert.Equal(t, 0.0, Rate(4, 0))
	assert.Equal(t, 100.0, Rate(2, 2))
}

func TestNewWindow(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	w := NewWindow(now, 7)

	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), w.To)
	assert.Equal(t, time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC), w.PrevFrom)

	dates := w.Dates()
	require.Len(t, dates, 7)
	assert.Equal(t, "2024-03-04", dates[0])
	assert.Equal(t, "2024-03-10", dates[6])
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}
