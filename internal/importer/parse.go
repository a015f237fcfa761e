package importer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"estatehub/server/internal/models"
)

// Skipped describes a listing card that could not be imported.
type Skipped struct {
	Index  int    `json:"index"`
	Ref    string `json:"ref,omitempty"`
	Reason string `json:"reason"`
}

// Parse reads the partner feed and returns the listings of every valid
// `.listing` card for the agency. Malformed cards are reported in skipped.
func Parse(r io.Reader, agencyID uint) ([]*models.Property, []Skipped, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse listing feed: %w", err)
	}

	var listings []*models.Property
	var skipped []Skipped
	seen := make(map[string]bool)

	doc.Find(".listing").Each(func(i int, s *goquery.Selection) {
		ref := strings.TrimSpace(s.AttrOr("data-ref", ""))
		p, err := parseCard(s, ref, agencyID)
		if err == nil && seen[ref] {
			err = errors.New("duplicate reference")
		}
		if err != nil {
			skipped = append(skipped, Skipped{Index: i, Ref: ref, Reason: err.Error()})
			return
		}
		seen[ref] = true
		listings = append(listings, p)
	})
	return listings, skipped, nil
}

func text(s *goquery.Selection, selector string) string {
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

func parseCard(s *goquery.Selection, ref string, agencyID uint) (*models.Property, error) {
	if ref == "" {
		return nil, errors.New("missing data-ref")
	}
	title := text(s, ".title")
	if title == "" {
		return nil, errors.New("missing title")
	}

	price, err := parseNumber(text(s, ".price"))
	if err != nil || price <= 0 {
		return nil, fmt.Errorf("invalid price %q", text(s, ".price"))
	}

	typ := models.PropertyType(strings.ToUpper(text(s, ".type")))
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown property type %q", text(s, ".type"))
	}
	listing := models.ListingType(strings.ToUpper(strings.TrimSpace(s.AttrOr("data-listing", ""))))
	if !listing.Valid() {
		return nil, fmt.Errorf("unknown listing type %q", s.AttrOr("data-listing", ""))
	}

	p := &models.Property{
		Title:       title,
		Type:        typ,
		ListingType: listing,
		Status:      models.PropertyStatusActive,
		Price:       price,
		City:        text(s, ".city"),
		District:    text(s, ".district"),
		Address:     text(s, ".address"),
		AgencyID:    &agencyID,
		ExternalRef: &ref,
	}

	if raw := text(s, ".area"); raw != "" {
		area, err := parseNumber(raw)
		if err != nil || area <= 0 {
			return nil, fmt.Errorf("invalid area %q", raw)
		}
		p.Area = &area
	}
	if raw := text(s, ".bedrooms"); raw != "" {
		beds, err := strconv.Atoi(strings.Fields(raw)[0])
		if err != nil || beds < 0 {
			return nil, fmt.Errorf("invalid bedrooms %q", raw)
		}
		p.Bedrooms = &beds
	}

	lat, hasLat := s.Attr("data-lat")
	lng, hasLng := s.Attr("data-lng")
	if hasLat && hasLng {
		la, errLat := strconv.ParseFloat(strings.TrimSpace(lat), 64)
		lo, errLng := strconv.ParseFloat(strings.TrimSpace(lng), 64)
		if errLat != nil || errLng != nil || la < -90 || la > 90 || lo < -180 || lo > 180 {
			return nil, fmt.Errorf("invalid coordinates %q,%q", lat, lng)
		}
		p.Latitude, p.Longitude = &la, &lo
	}
	return p, nil
}

// parseNumber reads amounts such as "€ 350.000", "1,250,000.50" or "85 m²".
// A lone separator followed by exactly three digits is a thousands separator.
func parseNumber(raw string) (float64, error) {
	var b strings.Builder
	started := false
scan:
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			started = true
		case (r == '.' || r == ',') && started:
			b.WriteRune(r)
		case r == ' ' || r == '\u00a0':
			// grouping space
		default:
			if started {
				break scan
			}
		}
	}
	num := strings.TrimRight(b.String(), ".,")
	if num == "" {
		return 0, fmt.Errorf("no number in %q", raw)
	}

	lastDot, lastComma := strings.LastIndex(num, "."), strings.LastIndex(num, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimal := "."
		if lastComma > lastDot {
			decimal = ","
		}
		num = normalise(num, decimal)
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		if lastComma >= 0 {
			sep = ","
		}
		parts := strings.Split(num, sep)
		if len(parts) > 2 || len(parts[len(parts)-1]) == 3 {
			num = strings.ReplaceAll(num, sep, "")
		} else {
			num = strings.Replace(num, sep, ".", 1)
		}
	}
	return strconv.ParseFloat(num, 64)
}

func normalise(num, decimal string) string {
	group := ","
	if decimal == "," {
		group = "."
	}
	num = strings.ReplaceAll(num, group, "")
	return strings.Replace(num, decimal, ".", 1)
}
