package match

import (
	"fmt"
	"strings"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// Component weights for the combined score. When a component is unknown
// on either side (no album, no duration) the score is rescaled over the
// weights that could be computed, so a perfect title+artist match is not
// penalized for sparse metadata.
const (
	titleWeight    = 0.5
	artistWeight   = 0.35
	albumWeight    = 0.1
	durationWeight = 0.05
)

// Duration closeness: full bonus within ±3s, decaying to zero by ±15s.
const (
	durationFullSecs = 3
	durationZeroSecs = 15
)

// Confidence cutoffs. Candidates under the low cutoff are discarded.
const (
	exactCutoff   = 90
	highCutoff    = 70
	discardCutoff = 40
)

// scoreCandidate scores a catalog hit against the wanted song, returning
// a 0-100 score and a human-readable reason for review UIs.
func scoreCandidate(want, hit models.Song) (int, string) {
	titleSim := shared.Similarity(want.Title, hit.Title)
	artistSim := shared.Similarity(want.Artist, hit.Artist)

	weightSum := titleWeight + artistWeight
	weighted := titleSim*titleWeight + artistSim*artistWeight

	reasons := []string{
		fmt.Sprintf("title %d%%", int(titleSim*100)),
		fmt.Sprintf("artist %d%%", int(artistSim*100)),
	}

	if want.Album != "" && hit.Album != "" {
		albumSim := shared.Similarity(want.Album, hit.Album)
		weighted += albumSim * albumWeight
		weightSum += albumWeight
		reasons = append(reasons, fmt.Sprintf("album %d%%", int(albumSim*100)))
	}

	if want.Duration > 0 && hit.Duration > 0 {
		closeness := durationCloseness(want.Duration, hit.Duration)
		weighted += closeness * durationWeight
		weightSum += durationWeight
		diff := want.Duration - hit.Duration
		if diff < 0 {
			diff = -diff
		}
		reasons = append(reasons, fmt.Sprintf("duration ±%ds", diff))
	}

	score := int(weighted / weightSum * 100)
	return score, strings.Join(reasons, ", ")
}

// durationCloseness maps the absolute duration difference onto 0.0-1.0.
func durationCloseness(a, b int) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= durationFullSecs:
		return 1
	case diff >= durationZeroSecs:
		return 0
	default:
		return float64(durationZeroSecs-diff) / float64(durationZeroSecs-durationFullSecs)
	}
}

// confidenceFor buckets a score. Scores under the discard cutoff return
// false; ConfidenceNone is reserved for songs with zero candidates.
func confidenceFor(score int) (models.Confidence, bool) {
	switch {
	case score >= exactCutoff:
		return models.ConfidenceExact, true
	case score >= highCutoff:
		return models.ConfidenceHigh, true
	case score >= discardCutoff:
		return models.ConfidenceLow, true
	default:
		return "", false
	}
}
