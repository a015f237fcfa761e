package geometry

import (
	"math"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"estatehub/server/internal/models"
)

// DefaultBuffer pads hulls by roughly 100m so single streets still render as areas.
const DefaultBuffer = 0.001

// District collects the located listings of one district of a city.
type District struct {
	City   string
	Name   string
	Points []orb.Point

	priceSum    float64
	sqmPriceSum float64
	sqmCount    int
}

func (d *District) add(p models.Property) {
	d.Points = append(d.Points, orb.Point{*p.Longitude, *p.Latitude})
	d.priceSum += p.Price
	if ppsqm := p.PricePerSqm(); ppsqm > 0 {
		d.sqmPriceSum += ppsqm
		d.sqmCount++
	}
}

// GroupDistricts buckets located listings by city and district. Listings
// without coordinates or district are skipped.
func GroupDistricts(properties []models.Property) []*District {
	byKey := make(map[string]*District)
	for _, p := range properties {
		if !p.HasCoordinates() || strings.TrimSpace(p.District) == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(p.City)) + "|" + strings.ToLower(strings.TrimSpace(p.District))
		d, ok := byKey[key]
		if !ok {
			d = &District{City: strings.TrimSpace(p.City), Name: strings.TrimSpace(p.District)}
			byKey[key] = d
		}
		d.add(p)
	}

	districts := make([]*District, 0, len(byKey))
	for _, d := range byKey {
		districts = append(districts, d)
	}
	sort.Slice(districts, func(i, j int) bool {
		ci, cj := strings.ToLower(districts[i].City), strings.ToLower(districts[j].City)
		if ci != cj {
			return ci < cj
		}
		return strings.ToLower(districts[i].Name) < strings.ToLower(districts[j].Name)
	})
	return districts
}

// DistrictHulls builds one polygon feature per district. Districts with
// fewer than three non-collinear listings get their padded bounding box.
func DistrictHulls(properties []models.Property, buffer float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, d := range GroupDistricts(properties) {
		hullType := "convex"
		var polygon orb.Polygon
		if hull := convexHull(d.Points); hull != nil {
			polygon = orb.Polygon{bufferHull(hull, buffer)}
		} else {
			hullType = "bound"
			polygon = orb.MultiPoint(d.Points).Bound().Pad(buffer).ToPolygon()
		}

		feature := geojson.NewFeature(polygon)
		feature.Properties = geojson.Properties{
			"city":          d.City,
			"district":      d.Name,
			"listing_count": len(d.Points),
			"avg_price":     round2(d.priceSum / float64(len(d.Points))),
			"hull_type":     hullType,
		}
		if d.sqmCount > 0 {
			feature.Properties["avg_price_per_m2"] = round2(d.sqmPriceSum / float64(d.sqmCount))
		}
		fc.Append(feature)
	}
	return fc
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// convexHull returns the closed counter-clockwise hull ring, or nil when the
// points do not span an area.
func convexHull(points []orb.Point) orb.Ring {
	pts := make([]orb.Point, 0, len(points))
	seen := make(map[orb.Point]bool, len(points))
	for _, p := range points {
		if !seen[p] {
			seen[p] = true
			pts = append(pts, p)
		}
	}
	if len(pts) < 3 {
		return nil
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	// Monotone chain: lower hull then upper hull
	hull := make([]orb.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// the last point repeats the first and closes the ring
	if len(hull) < 4 {
		return nil
	}
	return orb.Ring(hull)
}

// bufferHull pushes every vertex away from the ring centroid by distance.
func bufferHull(hull orb.Ring, distance float64) orb.Ring {
	if len(hull) < 4 || distance <= 0 {
		return hull
	}
	var cx, cy float64
	n := len(hull) - 1
	for _, p := range hull[:n] {
		cx += p[0]
		cy += p[1]
	}
	cx /= float64(n)
	cy /= float64(n)

	buffered := make(orb.Ring, 0, len(hull))
	for _, p := range hull[:n] {
		dx, dy := p[0]-cx, p[1]-cy
		length := math.Hypot(dx, dy)
		if length == 0 {
			buffered = append(buffered, p)
			continue
		}
		scale := (length + distance) / length
		buffered = append(buffered, orb.Point{cx + dx*scale, cy + dy*scale})
	}
	return append(buffered, buffered[0])
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
