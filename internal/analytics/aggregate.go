package analytics

import (
	"sort"
	"time"

	"estatehub/server/internal/models"
)

func countStatus(leads []models.Lead, status models.LeadStatus) int64 {
	var n int64
	for _, l := range leads {
		if l.Status == status {
			n++
		}
	}
	return n
}

// closedSummary returns won count, won value and lost count.
func closedSummary(deals []models.Deal) (int64, float64, int64) {
	var won, lost int64
	var value float64
	for _, d := range deals {
		switch d.Stage {
		case models.StageClosedWon:
			won++
			value += d.Value
		case models.StageClosedLost:
			lost++
		}
	}
	return won, value, lost
}

// leadsBySource lists every source in enum order, zero counts included.
func leadsBySource(leads []models.Lead) []SourceCount {
	counts := make(map[models.LeadSource]int64)
	for _, l := range leads {
		counts[l.Source]++
	}
	out := make([]SourceCount, 0, len(models.LeadSources))
	for _, src := range models.LeadSources {
		out = append(out, SourceCount{Source: src, Count: counts[src]})
	}
	return out
}

func funnel(leads []models.Lead) []StatusCount {
	counts := make(map[models.LeadStatus]int64)
	for _, l := range leads {
		counts[l.Status]++
	}
	out := make([]StatusCount, 0, len(models.LeadStatuses))
	for _, st := range models.LeadStatuses {
		out = append(out, StatusCount{Status: st, Count: counts[st]})
	}
	return out
}

// dailySeries buckets leads and views by UTC date over the window.
func dailySeries(w Window, leads []models.Lead, views []time.Time) []DailyPoint {
	dates := w.Dates()
	index := make(map[string]int, len(dates))
	points := make([]DailyPoint, len(dates))
	for i, d := range dates {
		index[d] = i
		points[i].Date = d
	}
	for _, l := range leads {
		if i, ok := index[l.CreatedAt.UTC().Format(dateLayout)]; ok {
			points[i].Leads++
		}
	}
	for _, v := range views {
		if i, ok := index[v.UTC().Format(dateLayout)]; ok {
			points[i].Views++
		}
	}
	return points
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
