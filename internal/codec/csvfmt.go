package codec

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// Column name variants emitted by known export tools, mapped onto the
// canonical fields. Matching is case-insensitive.
var (
	titleColumns      = []string{"title", "track name", "track", "song", "name"}
	artistColumns     = []string{"artist", "artist name(s)", "artist(s)", "artists", "artist name"}
	albumColumns      = []string{"album", "album name"}
	durationColumns   = []string{"duration", "length"}
	durationMsColumns = []string{"duration (ms)", "duration_ms"}
	isrcColumns       = []string{"isrc"}
	urlColumns        = []string{"url", "link", "spotify track id", "track uri"}
)

type csvColumns struct {
	title, artist, album, duration, durationMs, isrc, url int
}

// isCSVHeader reports whether a line looks like a tabular header row:
// it must name both a track-name-like and an artist-like column.
func isCSVHeader(line string) bool {
	reader := csv.NewReader(strings.NewReader(line))
	fields, err := reader.Read()
	if err != nil {
		return false
	}
	cols := mapColumns(fields)
	return cols.title >= 0 && cols.artist >= 0
}

func mapColumns(header []string) csvColumns {
	cols := csvColumns{title: -1, artist: -1, album: -1, duration: -1, durationMs: -1, isrc: -1, url: -1}

	find := func(variants []string, name string) bool {
		for _, v := range variants {
			if v == name {
				return true
			}
		}
		return false
	}

	for i, field := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(field, "\uFEFF")))
		switch {
		case cols.title < 0 && find(titleColumns, name):
			cols.title = i
		case cols.artist < 0 && find(artistColumns, name):
			cols.artist = i
		case cols.album < 0 && find(albumColumns, name):
			cols.album = i
		case cols.durationMs < 0 && find(durationMsColumns, name):
			cols.durationMs = i
		case cols.duration < 0 && find(durationColumns, name):
			cols.duration = i
		case cols.isrc < 0 && find(isrcColumns, name):
			cols.isrc = i
		case cols.url < 0 && find(urlColumns, name):
			cols.url = i
		}
	}

	return cols
}

func parseCSV(text string) (*ParseResult, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing CSV header row: %v", shared.ErrInvalidInput, err)
	}

	cols := mapColumns(header)
	if cols.title < 0 || cols.artist < 0 {
		return nil, fmt.Errorf("%w: CSV header names no track/artist columns", shared.ErrInvalidInput)
	}

	result := &ParseResult{Playlist: models.Playlist{Name: "Imported Playlist"}}

	field := func(record []string, idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	for rowNo := 2; ; rowNo++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: %v", rowNo, err))
			continue
		}

		song := models.Song{
			Title:  field(record, cols.title),
			Artist: field(record, cols.artist),
			Album:  field(record, cols.album),
			ISRC:   field(record, cols.isrc),
			URL:    field(record, cols.url),
		}
		if song.Title == "" && song.Artist == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: missing title and artist, skipped", rowNo))
			continue
		}

		if raw := field(record, cols.durationMs); raw != "" {
			if ms, err := strconv.Atoi(raw); err == nil {
				song.Duration = ms / 1000
			}
		} else if raw := field(record, cols.duration); raw != "" {
			song.Duration = parseDurationField(raw)
		}

		result.Playlist.Songs = append(result.Playlist.Songs, song)
	}

	return result, nil
}

// parseDurationField accepts plain seconds or m:ss notation.
func parseDurationField(raw string) int {
	if secs, err := strconv.Atoi(raw); err == nil {
		return secs
	}
	m, s, found := strings.Cut(raw, ":")
	if !found {
		return 0
	}
	mins, err1 := strconv.Atoi(strings.TrimSpace(m))
	secs, err2 := strconv.Atoi(strings.TrimSpace(s))
	if err1 != nil || err2 != nil {
		return 0
	}
	return mins*60 + secs
}

func renderCSV(playlist models.Playlist) (string, error) {
	var b strings.Builder
	writer := csv.NewWriter(&b)

	if err := writer.Write([]string{"Title", "Artist", "Album", "Duration", "ISRC", "URL"}); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, song := range playlist.Songs {
		duration := ""
		if song.Duration > 0 {
			duration = strconv.Itoa(song.Duration)
		}
		record := []string{song.Title, song.Artist, song.Album, duration, song.ISRC, song.URL}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("CSV writer error: %w", err)
	}

	return b.String(), nil
}
