package jobs

import (
	"fmt"

	"github.com/castafiore/tunebridge/internal/codec"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// ProgressUpdate represents a progress event during a long-running job.
//
// Used to send real-time updates to the CLI or API layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced consumers
}

// Operation phase enumeration
type Phase int

const (
	ParseSource Phase = iota
	MatchSongs
	AwaitReview
	CommitSongs
	FetchPlaylist
	EnrichSongs
	RenderPlaylist
	ComparePlaylists
)

func (p Phase) String() string {
	switch p {
	case ParseSource:
		return "parse_source"
	case MatchSongs:
		return "match_songs"
	case AwaitReview:
		return "await_review"
	case CommitSongs:
		return "commit_songs"
	case FetchPlaylist:
		return "fetch_playlist"
	case EnrichSongs:
		return "enrich_songs"
	case RenderPlaylist:
		return "render_playlist"
	case ComparePlaylists:
		return "compare_playlists"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default so progress reporting never stalls a job.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

func parseSourceUpdate(format codec.Format, songCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ParseSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Parsed %s playlist (%d songs)", format, songCount),
	}
}

func matchSongsUpdate(step, total int, result *models.SongMatchResult) ProgressUpdate {
	if result == nil {
		return ProgressUpdate{
			Phase:   MatchSongs,
			Step:    step,
			Total:   total,
			Message: "Matching songs against catalogs...",
		}
	}
	return ProgressUpdate{
		Phase:   MatchSongs,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s: %s", step, total, result.Song.Artist, result.Song.Title, result.Status),
		Data:    result,
	}
}

func awaitReviewUpdate(pending int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   AwaitReview,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%d songs awaiting review", pending),
	}
}

func commitSongsUpdate(step, total int, song models.Song) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CommitSongs,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Added: %s - %s", step, total, song.Artist, song.Title),
	}
}

func fetchPlaylistUpdate(name string, songCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Loaded playlist: %s (%d songs)", name, songCount),
	}
}

func enrichSongsUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   EnrichSongs,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Refreshing metadata for %d songs...", count),
	}
}

func renderPlaylistUpdate(format codec.Format, duration int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RenderPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Rendering %s playlist (%s total)", format, shared.FormatDuration(duration)),
	}
}
