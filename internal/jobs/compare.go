package jobs

import (
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// ComparisonResult contains song comparison details between two playlists.
type ComparisonResult struct {
	MatchedCount  int           // Songs found in both
	MissingInDest []models.Song // Songs in source but not in dest
	ExtraInDest   []models.Song // Songs in dest but not in source
}

// Compare diffs two playlists by song identity. An ISRC match wins;
// otherwise songs compare by normalized title and artist.
func Compare(source, dest models.Playlist) ComparisonResult {
	result := ComparisonResult{}

	destKeys, destISRCs := identityMaps(dest.Songs)
	for _, song := range source.Songs {
		if containsSong(destKeys, destISRCs, song) {
			result.MatchedCount++
		} else {
			result.MissingInDest = append(result.MissingInDest, song)
		}
	}

	sourceKeys, sourceISRCs := identityMaps(source.Songs)
	for _, song := range dest.Songs {
		if !containsSong(sourceKeys, sourceISRCs, song) {
			result.ExtraInDest = append(result.ExtraInDest, song)
		}
	}

	return result
}

func identityMaps(songs []models.Song) (map[string]struct{}, map[string]struct{}) {
	keys := make(map[string]struct{}, len(songs))
	isrcs := make(map[string]struct{})
	for _, song := range songs {
		keys[shared.SongKey(song.Title, song.Artist)] = struct{}{}
		if song.ISRC != "" {
			isrcs[song.ISRC] = struct{}{}
		}
	}
	return keys, isrcs
}

func containsSong(keys, isrcs map[string]struct{}, song models.Song) bool {
	if song.ISRC != "" {
		if _, found := isrcs[song.ISRC]; found {
			return true
		}
	}
	_, found := keys[shared.SongKey(song.Title, song.Artist)]
	return found
}
