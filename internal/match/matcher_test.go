package match

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/castafiore/tunebridge/internal/catalog"
	"github.com/castafiore/tunebridge/internal/models"
	tbtest "github.com/castafiore/tunebridge/internal/testing"
)

func songHit(platform, id, title, artist string) models.Song {
	return models.Song{
		Title:      title,
		Artist:     artist,
		Platform:   platform,
		PlatformID: id,
	}
}

func TestMatchISRC(t *testing.T) {
	t.Run("ISRCHitWinsOutright", func(t *testing.T) {
		searched := false
		adapter := &tbtest.MockAdapter{
			PlatformName: "local",
			SearchByISRCFunc: func(ctx context.Context, isrc string) ([]models.Song, error) {
				if isrc != "USRW29600011" {
					t.Errorf("unexpected isrc %q", isrc)
				}
				return []models.Song{songHit("local", "42", "Everlong", "Foo Fighters")}, nil
			},
			SearchFunc: func(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
				searched = true
				return nil, nil
			},
		}

		matcher := New([]catalog.Adapter{adapter}, Options{})
		result, warnings := matcher.Match(context.Background(), models.Song{
			Title: "Everlong", Artist: "Foo Fighters", ISRC: "USRW29600011",
		})

		if len(warnings) != 0 {
			t.Errorf("unexpected warnings: %v", warnings)
		}
		if searched {
			t.Error("fuzzy search should not run after an ISRC hit")
		}
		if result.Status != models.MatchStatusMatched {
			t.Fatalf("expected matched, got %s", result.Status)
		}
		if result.Matches[0].MatchScore != 100 || result.Matches[0].Confidence != models.ConfidenceExact {
			t.Errorf("ISRC hit should score 100 exact, got %d %s", result.Matches[0].MatchScore, result.Matches[0].Confidence)
		}
		if result.SelectedMatch == nil || result.SelectedMatch.PlatformID != "42" {
			t.Errorf("expected selected match 42, got %+v", result.SelectedMatch)
		}
	})

	t.Run("ISRCMissFallsBackToText", func(t *testing.T) {
		adapter := &tbtest.MockAdapter{
			PlatformName: "local",
			SearchFunc: func(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
				return []models.Song{songHit("local", "7", "Everlong", "Foo Fighters")}, nil
			},
		}

		matcher := New([]catalog.Adapter{adapter}, Options{})
		result, _ := matcher.Match(context.Background(), models.Song{
			Title: "Everlong", Artist: "Foo Fighters", ISRC: "XX0000000000",
		})

		if result.Status != models.MatchStatusMatched {
			t.Fatalf("expected matched via text search, got %s", result.Status)
		}
	})
}

func TestMatchText(t *testing.T) {
	want := models.Song{Title: "Everlong", Artist: "Foo Fighters"}

	t.Run("ExactHitAutoAccepted", func(t *testing.T) {
		adapter := &tbtest.MockAdapter{
			PlatformName: "local",
			SearchFunc: func(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
				return []models.Song{songHit("local", "1", "Everlong", "Foo Fighters")}, nil
			},
		}

		matcher := New([]catalog.Adapter{adapter}, Options{})
		result, _ := matcher.Match(context.Background(), want)

		if result.Status != models.MatchStatusMatched {
			t.Fatalf("expected matched, got %s", result.Status)
		}
		if result.Matches[0].MatchScore != 100 {
			t.Errorf("identical metadata should score 100, got %d", result.Matches[0].MatchScore)
		}
	})

	t.Run("AmbiguousTopScoresPendReview", func(t *testing.T) {
		adapter := &tbtest.MockAdapter{
			PlatformName: "local",
			SearchFunc: func(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
				return []models.Song{
					songHit("local", "1", "Everlong", "Foo Fighters"),
					songHit("local", "2", "Everlong", "Foo Fighters"),
				}, nil
			},
		}

		matcher := New([]catalog.Adapter{adapter}, Options{})
		result, _ := matcher.Match(context.Background(), want)

		if result.Status != models.MatchStatusPendingReview {
			t.Fatalf("tied top candidates should need review, got %s", result.Status)
		}
		if result.SelectedMatch != nil {
			t.Errorf("pending review should not select a match, got %+v", result.SelectedMatch)
		}
	})

	t.Run("NoHitsIsNoMatch", func(t *testing.T) {
		matcher := New([]catalog.Adapter{&tbtest.MockAdapter{PlatformName: "local"}}, Options{})
		result, _ := matcher.Match(context.Background(), want)

		if result.Status != models.MatchStatusNoMatch {
			t.Fatalf("expected no_match, got %s", result.Status)
		}
		if len(result.Matches) != 0 {
			t.Errorf("expected no candidates, got %d", len(result.Matches))
		}
	})

	t.Run("WeakHitsDiscarded", func(t *testing.T) {
		adapter := &tbtest.MockAdapter{
			PlatformName: "local",
			SearchFunc: func(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
				return []models.Song{songHit("local", "9", "Completely Different", "Another Band")}, nil
			},
		}

		matcher := New([]catalog.Adapter{adapter}, Options{})
		result, _ := matcher.Match(context.Background(), want)

		if result.Status != models.MatchStatusNoMatch {
			t.Fatalf("sub-cutoff hits should be discarded, got %s with %d candidates", result.Status, len(result.Matches))
		}
	})

	t.Run("CandidatesRankedAndCapped", func(t *testing.T) {
		adapter := &tbtest.MockAdapter{
			PlatformName: "local",
			SearchFunc: func(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
				return []models.Song{
					songHit("local", "close", "Everlong (Acoustic)", "Foo Fighters"),
					songHit("local", "exact", "Everlong", "Foo Fighters"),
					songHit("local", "close2", "Everlong Live", "Foo Fighters"),
				}, nil
			},
		}

		matcher := New([]catalog.Adapter{adapter}, Options{MaxCandidates: 2})
		result, _ := matcher.Match(context.Background(), want)

		if len(result.Matches) != 2 {
			t.Fatalf("expected candidate list capped at 2, got %d", len(result.Matches))
		}
		if result.Matches[0].PlatformID != "exact" {
			t.Errorf("expected the exact hit ranked first, got %s", result.Matches[0].PlatformID)
		}
		if result.Matches[0].MatchScore < result.Matches[1].MatchScore {
			t.Errorf("candidates not in descending score order: %d then %d",
				result.Matches[0].MatchScore, result.Matches[1].MatchScore)
		}
	})
}

func TestMatchAdapterFailure(t *testing.T) {
	t.Run("FailingAdapterWarnsOnly", func(t *testing.T) {
		broken := &tbtest.MockAdapter{
			PlatformName: "spotify",
			SearchFunc: func(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
				return nil, errors.New("rate limited")
			},
		}
		working := &tbtest.MockAdapter{
			PlatformName: "local",
			SearchFunc: func(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
				return []models.Song{songHit("local", "1", "Everlong", "Foo Fighters")}, nil
			},
		}

		matcher := New([]catalog.Adapter{broken, working}, Options{})
		result, warnings := matcher.Match(context.Background(), models.Song{Title: "Everlong", Artist: "Foo Fighters"})

		if result.Status != models.MatchStatusMatched {
			t.Fatalf("healthy adapter should still match, got %s", result.Status)
		}
		if len(warnings) != 1 || !strings.Contains(warnings[0], "spotify") {
			t.Errorf("expected one warning naming the failed platform, got %v", warnings)
		}
	})

	t.Run("AllAdaptersFailing", func(t *testing.T) {
		broken := &tbtest.MockAdapter{
			PlatformName: "local",
			SearchFunc: func(ctx context.Context, query string, start, limit int) ([]models.Song, error) {
				return nil, errors.New("connection refused")
			},
		}

		matcher := New([]catalog.Adapter{broken}, Options{})
		result, warnings := matcher.Match(context.Background(), models.Song{Title: "Everlong", Artist: "Foo Fighters"})

		if result.Status != models.MatchStatusNoMatch {
			t.Fatalf("expected no_match, got %s", result.Status)
		}
		if len(warnings) != 1 {
			t.Errorf("expected one warning, got %v", warnings)
		}
	})
}

func TestScoreCandidate(t *testing.T) {
	t.Run("IdenticalFullMetadata", func(t *testing.T) {
		song := models.Song{Title: "Everlong", Artist: "Foo Fighters", Album: "The Colour and the Shape", Duration: 250}
		score, reason := scoreCandidate(song, song)
		if score != 100 {
			t.Errorf("expected 100, got %d", score)
		}
		if !strings.Contains(reason, "title 100%") {
			t.Errorf("reason should mention title similarity: %s", reason)
		}
	})

	t.Run("SparseMetadataNotPenalized", func(t *testing.T) {
		want := models.Song{Title: "Everlong", Artist: "Foo Fighters"}
		hit := models.Song{Title: "Everlong", Artist: "Foo Fighters", Album: "Greatest Hits", Duration: 250}

		score, _ := scoreCandidate(want, hit)
		if score != 100 {
			t.Errorf("components unknown on one side should be excluded, got %d", score)
		}
	})

	t.Run("DurationDifferenceLowersScore", func(t *testing.T) {
		want := models.Song{Title: "Everlong", Artist: "Foo Fighters", Duration: 250}
		near := models.Song{Title: "Everlong", Artist: "Foo Fighters", Duration: 252}
		far := models.Song{Title: "Everlong", Artist: "Foo Fighters", Duration: 290}

		nearScore, _ := scoreCandidate(want, near)
		farScore, _ := scoreCandidate(want, far)

		if nearScore != 100 {
			t.Errorf("±2s should keep the full duration bonus, got %d", nearScore)
		}
		if farScore >= nearScore {
			t.Errorf("a 40s duration gap should lower the score: %d vs %d", farScore, nearScore)
		}
	})

	t.Run("DiacriticsAndCaseIgnored", func(t *testing.T) {
		want := models.Song{Title: "Szamár Madár", Artist: "Venetian Snares"}
		hit := models.Song{Title: "szamar madar", Artist: "VENETIAN SNARES"}

		score, _ := scoreCandidate(want, hit)
		if score != 100 {
			t.Errorf("normalization should make these identical, got %d", score)
		}
	})
}

func TestConfidenceFor(t *testing.T) {
	cases := []struct {
		score int
		want  models.Confidence
		keep  bool
	}{
		{100, models.ConfidenceExact, true},
		{90, models.ConfidenceExact, true},
		{89, models.ConfidenceHigh, true},
		{70, models.ConfidenceHigh, true},
		{69, models.ConfidenceLow, true},
		{40, models.ConfidenceLow, true},
		{39, "", false},
		{0, "", false},
	}

	for _, tc := range cases {
		got, keep := confidenceFor(tc.score)
		if got != tc.want || keep != tc.keep {
			t.Errorf("confidenceFor(%d) = (%s, %v), want (%s, %v)", tc.score, got, keep, tc.want, tc.keep)
		}
	}
}
