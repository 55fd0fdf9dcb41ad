package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/castafiore/tunebridge/internal/models"
)

// parseM3U handles the line-oriented format: an optional #EXTM3U header,
// #EXTINF directives carrying duration and "Artist - Title", and bare
// "Artist - Title" lines. The line after an #EXTINF directive is its
// location.
func parseM3U(text string) (*ParseResult, error) {
	result := &ParseResult{Playlist: models.Playlist{Name: "Imported Playlist"}}

	var pending *models.Song
	for lineNo, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF"))
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			if song, ok := parseExtinf(line); ok {
				pending = &song
			} else if strings.HasPrefix(line, "#EXTINF") {
				result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: malformed #EXTINF directive", lineNo+1))
			} else if name := strings.TrimSpace(strings.TrimPrefix(line, "#PLAYLIST:")); name != "" && name != line {
				result.Playlist.Name = name
			}
			// Other directives (#EXTM3U, comments) are skipped.
			continue
		}

		if pending != nil {
			song := *pending
			if strings.Contains(line, "://") {
				song.URL = line
			}
			result.Playlist.Songs = append(result.Playlist.Songs, song)
			pending = nil
			continue
		}

		artist, title, ok := splitArtistTitle(line)
		if !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: not in 'Artist - Title' form: %q", lineNo+1, line))
			continue
		}
		result.Playlist.Songs = append(result.Playlist.Songs, models.Song{Title: title, Artist: artist})
	}

	if pending != nil {
		// #EXTINF at end of file with no location line still names a song.
		result.Playlist.Songs = append(result.Playlist.Songs, *pending)
	}

	return result, nil
}

// parseExtinf parses "#EXTINF:<secs>,Artist - Title".
func parseExtinf(line string) (models.Song, bool) {
	rest, found := strings.CutPrefix(line, "#EXTINF:")
	if !found {
		return models.Song{}, false
	}

	durPart, meta, found := strings.Cut(rest, ",")
	if !found {
		return models.Song{}, false
	}

	song := models.Song{}
	if dur, err := strconv.Atoi(strings.TrimSpace(durPart)); err == nil && dur > 0 {
		song.Duration = dur
	}

	if artist, title, ok := splitArtistTitle(meta); ok {
		song.Artist = artist
		song.Title = title
	} else if title := strings.TrimSpace(meta); title != "" {
		song.Title = title
	} else {
		return models.Song{}, false
	}

	return song, true
}

// splitArtistTitle splits "Artist - Title" on the first separator.
func splitArtistTitle(line string) (artist, title string, ok bool) {
	artist, title, found := strings.Cut(line, " - ")
	artist = strings.TrimSpace(artist)
	title = strings.TrimSpace(title)
	if !found || artist == "" || title == "" {
		return "", "", false
	}
	return artist, title, true
}

// renderM3U writes an EXTM3U document. Songs without a URL get their
// "Artist - Title" string as the location line so round-trips preserve
// the song count.
func renderM3U(playlist models.Playlist) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	if playlist.Name != "" {
		fmt.Fprintf(&b, "#PLAYLIST:%s\n", playlist.Name)
	}

	for _, song := range playlist.Songs {
		duration := song.Duration
		if duration == 0 {
			duration = -1
		}
		fmt.Fprintf(&b, "#EXTINF:%d,%s - %s\n", duration, song.Artist, song.Title)
		if song.URL != "" {
			b.WriteString(song.URL)
		} else {
			fmt.Fprintf(&b, "%s - %s", song.Artist, song.Title)
		}
		b.WriteString("\n")
	}

	return b.String()
}
