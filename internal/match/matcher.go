// package match resolves canonical songs against platform catalogs with
// a confidence-scored, tiered matching algorithm.
//
// An ISRC lookup runs first and wins outright when it hits. Otherwise a
// fuzzy title/artist search across all adapters produces weighted-scored
// candidates. Adapters are queried in parallel per song; a single
// adapter's failure is treated as that adapter finding nothing.
package match

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/castafiore/tunebridge/internal/catalog"
	"github.com/castafiore/tunebridge/internal/models"
)

const (
	defaultMaxCandidates = 10
	defaultAutoAcceptGap = 5
	searchLimit          = 20
)

// Options tunes matcher behavior. Zero values select the defaults.
type Options struct {
	// MaxCandidates bounds the ranked candidate list to keep review UIs usable.
	MaxCandidates int
	// AutoAcceptGap is the minimum score lead over the runner-up before
	// an exact/high top candidate is accepted without review.
	AutoAcceptGap int
}

// Matcher produces ranked, confidence-scored candidate lists for songs.
// Safe for concurrent use; adapters are stateless.
type Matcher struct {
	adapters      []catalog.Adapter
	maxCandidates int
	autoAcceptGap int
}

// New creates a Matcher over the given adapters.
func New(adapters []catalog.Adapter, opts Options) *Matcher {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = defaultMaxCandidates
	}
	if opts.AutoAcceptGap <= 0 {
		opts.AutoAcceptGap = defaultAutoAcceptGap
	}
	return &Matcher{
		adapters:      adapters,
		maxCandidates: opts.MaxCandidates,
		autoAcceptGap: opts.AutoAcceptGap,
	}
}

// Match resolves one song against every adapter and classifies the
// outcome. Warnings describe adapter failures; they belong on the owning
// job, not in the result itself.
func (m *Matcher) Match(ctx context.Context, song models.Song) (models.SongMatchResult, []string) {
	result := models.SongMatchResult{Song: song}
	var warnings []string

	candidates, isrcWarnings := m.searchISRC(ctx, song)
	warnings = append(warnings, isrcWarnings...)

	if len(candidates) == 0 {
		var textWarnings []string
		candidates, textWarnings = m.searchText(ctx, song)
		warnings = append(warnings, textWarnings...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].MatchScore != candidates[j].MatchScore {
			return candidates[i].MatchScore > candidates[j].MatchScore
		}
		if candidates[i].Platform != candidates[j].Platform {
			return candidates[i].Platform < candidates[j].Platform
		}
		return candidates[i].PlatformID < candidates[j].PlatformID
	})
	if len(candidates) > m.maxCandidates {
		candidates = candidates[:m.maxCandidates]
	}
	result.Matches = candidates

	if len(candidates) == 0 {
		result.Status = models.MatchStatusNoMatch
		return result, warnings
	}

	top := candidates[0]
	confident := top.Confidence == models.ConfidenceExact || top.Confidence == models.ConfidenceHigh
	unambiguous := len(candidates) == 1 || top.MatchScore-candidates[1].MatchScore > m.autoAcceptGap

	if confident && unambiguous {
		result.Status = models.MatchStatusMatched
		result.SelectedMatch = &models.SelectedMatch{Platform: top.Platform, PlatformID: top.PlatformID}
	} else {
		result.Status = models.MatchStatusPendingReview
	}

	return result, warnings
}

// searchISRC queries each adapter's exact-identifier search in parallel.
// Any hit scores 100 with exact confidence.
func (m *Matcher) searchISRC(ctx context.Context, song models.Song) ([]models.MatchCandidate, []string) {
	if song.ISRC == "" {
		return nil, nil
	}

	hits, warnings := m.queryAll(ctx, func(adapter catalog.Adapter) ([]models.Song, error) {
		return adapter.SearchByISRC(ctx, song.ISRC)
	})

	var candidates []models.MatchCandidate
	for _, hit := range hits {
		candidates = append(candidates, models.MatchCandidate{
			Platform:    hit.Platform,
			PlatformID:  hit.PlatformID,
			Title:       hit.Title,
			Artist:      hit.Artist,
			Album:       hit.Album,
			Duration:    hit.Duration,
			URL:         hit.URL,
			Confidence:  models.ConfidenceExact,
			MatchScore:  100,
			MatchReason: "ISRC match",
		})
	}
	return candidates, warnings
}

// searchText queries each adapter's fuzzy search with a composed query
// and scores every hit, discarding those under the low cutoff.
func (m *Matcher) searchText(ctx context.Context, song models.Song) ([]models.MatchCandidate, []string) {
	query := composeQuery(song)

	hits, warnings := m.queryAll(ctx, func(adapter catalog.Adapter) ([]models.Song, error) {
		return adapter.Search(ctx, query, 0, searchLimit)
	})

	var candidates []models.MatchCandidate
	for _, hit := range hits {
		score, reason := scoreCandidate(song, hit)
		confidence, keep := confidenceFor(score)
		if !keep {
			continue
		}
		candidates = append(candidates, models.MatchCandidate{
			Platform:    hit.Platform,
			PlatformID:  hit.PlatformID,
			Title:       hit.Title,
			Artist:      hit.Artist,
			Album:       hit.Album,
			Duration:    hit.Duration,
			URL:         hit.URL,
			Confidence:  confidence,
			MatchScore:  score,
			MatchReason: reason,
		})
	}
	return candidates, warnings
}

// queryAll fans one query out to every adapter in parallel and merges
// the hits, preserving adapter registration order. A failing adapter
// contributes a warning instead of failing the song.
func (m *Matcher) queryAll(ctx context.Context, query func(catalog.Adapter) ([]models.Song, error)) ([]models.Song, []string) {
	perAdapter := make([][]models.Song, len(m.adapters))
	errs := make([]error, len(m.adapters))

	var wg sync.WaitGroup
	for i, adapter := range m.adapters {
		wg.Add(1)
		go func(i int, adapter catalog.Adapter) {
			defer wg.Done()
			perAdapter[i], errs[i] = query(adapter)
		}(i, adapter)
	}
	wg.Wait()

	var hits []models.Song
	var warnings []string
	for i, adapter := range m.adapters {
		if errs[i] != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", adapter.Platform(), errs[i]))
			continue
		}
		hits = append(hits, perAdapter[i]...)
	}
	return hits, warnings
}

// composeQuery builds the fuzzy search string from title and artist,
// adding the album when known.
func composeQuery(song models.Song) string {
	parts := []string{song.Title, song.Artist}
	if song.Album != "" {
		parts = append(parts, song.Album)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
