package pipeline

import (
	"math"
	"strings"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/models"
)

// probability is the chance, in percent, that a deal in the stage closes won.
var probability = map[models.Stage]float64{
	models.StageNew:         5,
	models.StageContacted:   10,
	models.StageQualified:   20,
	models.StageViewing:     35,
	models.StageOffer:       50,
	models.StageNegotiation: 65,
	models.StageContract:    85,
	models.StageClosedWon:   100,
	models.StageClosedLost:  0,
}

func Probability(stage models.Stage) float64 {
	return probability[stage]
}

// ParseStage accepts stage names case-insensitively.
func ParseStage(s string) (models.Stage, error) {
	stage := models.Stage(strings.ToUpper(strings.TrimSpace(s)))
	if !stage.Valid() {
		return "", apperr.BadRequest("unknown pipeline stage %q", s)
	}
	return stage, nil
}

// Commission returns value * rate / 100 rounded to cents.
func Commission(value, rate float64) float64 {
	return roundCents(value * rate / 100)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// move takes id out of src and inserts it into dst at index, clamped to
// [0, len(dst)]. When src and dst are the same column pass the same slice
// for both; the result is then returned twice.
func move(src, dst []uint, id uint, index int, sameStage bool) ([]uint, []uint) {
	remaining := make([]uint, 0, len(src))
	for _, v := range src {
		if v != id {
			remaining = append(remaining, v)
		}
	}

	var target []uint
	if sameStage {
		target = remaining
	} else {
		target = make([]uint, 0, len(dst))
		for _, v := range dst {
			if v != id {
				target = append(target, v)
			}
		}
	}

	if index < 0 {
		index = 0
	}
	if index > len(target) {
		index = len(target)
	}

	out := make([]uint, 0, len(target)+1)
	out = append(out, target[:index]...)
	out = append(out, id)
	out = append(out, target[index:]...)

	if sameStage {
		return out, out
	}
	return remaining, out
}
