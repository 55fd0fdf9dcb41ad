// package codec converts between raw playlist text and the canonical
// playlist representation.
//
// Four formats are supported: line-oriented M3U/EXTM3U, XSPF (XML), a
// structured JSON document, and tabular CSV as produced by spreadsheet
// export tools. Parsing is tolerant: an unparseable line or row becomes
// a warning rather than a failure as long as at least one song is
// recovered.
package codec

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// Format identifies a supported playlist text format.
type Format string

const (
	FormatM3U  Format = "m3u"
	FormatXSPF Format = "xspf"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseResult is a parsed playlist plus any per-line warnings collected
// along the way.
type ParseResult struct {
	Playlist models.Playlist
	Warnings []string
}

// ParseFormat maps a user-supplied format name onto a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "m3u", "m3u8", "txt":
		return FormatM3U, nil
	case "xspf", "xml":
		return FormatXSPF, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", shared.ErrUnsupportedFormat, name)
	}
}

// Extension returns the preferred file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatXSPF:
		return ".xspf"
	case FormatJSON:
		return ".json"
	case FormatCSV:
		return ".csv"
	default:
		return ".m3u"
	}
}

// Detect inspects raw playlist text and guesses its format.
//
// A leading playlist directive or a plausible "Artist - Title" line
// implies the line-oriented format; an XML declaration or playlist root
// element implies XSPF; a leading brace or bracket implies JSON; a
// header row naming both a track column and an artist column implies
// CSV. Returns ErrUnknownFormat when nothing matches; the caller may
// still pass an explicit format.
func Detect(text string) (Format, error) {
	trimmed := strings.TrimLeft(text, " \t\r\n\uFEFF")
	if trimmed == "" {
		return "", shared.ErrUnknownFormat
	}

	switch {
	case strings.HasPrefix(trimmed, "<?xml"), strings.HasPrefix(trimmed, "<playlist"):
		return FormatXSPF, nil
	case trimmed[0] == '{', trimmed[0] == '[':
		return FormatJSON, nil
	case strings.HasPrefix(trimmed, "#EXTM3U"), strings.HasPrefix(trimmed, "#"):
		return FormatM3U, nil
	}

	header := trimmed
	if idx := strings.IndexByte(header, '\n'); idx >= 0 {
		header = header[:idx]
	}
	if isCSVHeader(header) {
		return FormatCSV, nil
	}
	if strings.Contains(header, " - ") {
		return FormatM3U, nil
	}

	return "", shared.ErrUnknownFormat
}

// Parse converts raw playlist text in the given format into the
// canonical representation. A completely unrecoverable input fails with
// ErrEmptyPlaylist.
func Parse(text string, format Format) (*ParseResult, error) {
	var result *ParseResult
	var err error

	switch format {
	case FormatM3U:
		result, err = parseM3U(text)
	case FormatXSPF:
		result, err = parseXSPF(text)
	case FormatJSON:
		result, err = parseJSON(text)
	case FormatCSV:
		result, err = parseCSV(text)
	default:
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedFormat, format)
	}

	if err != nil {
		return nil, err
	}
	if len(result.Playlist.Songs) == 0 {
		return nil, shared.ErrEmptyPlaylist
	}
	return result, nil
}

// ParseAuto parses playlist text, preferring a filename extension hint
// over content sniffing for format detection.
func ParseAuto(text, hintFilename string) (*ParseResult, Format, error) {
	var format Format

	if hintFilename != "" {
		if f, err := ParseFormat(filepath.Ext(hintFilename)); err == nil {
			format = f
		}
	}
	if format == "" {
		f, err := Detect(text)
		if err != nil {
			return nil, "", err
		}
		format = f
	}

	result, err := Parse(text, format)
	if err != nil {
		return nil, format, err
	}
	return result, format, nil
}

// Render serializes a playlist into the given format. Rendering is
// deterministic; re-parsing the output yields the same song count,
// titles and artists, though lossy formats drop duration and ISRC.
func Render(playlist models.Playlist, format Format) (string, error) {
	switch format {
	case FormatM3U:
		return renderM3U(playlist), nil
	case FormatXSPF:
		return renderXSPF(playlist)
	case FormatJSON:
		return renderJSON(playlist)
	case FormatCSV:
		return renderCSV(playlist)
	default:
		return "", fmt.Errorf("%w: %s", shared.ErrUnsupportedFormat, format)
	}
}

// Filename suggests a download filename for a rendered playlist.
func Filename(playlist models.Playlist, format Format) string {
	name := strings.TrimSpace(playlist.Name)
	if name == "" {
		name = "playlist"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String() + format.Extension()
}
