package codec

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// XSPF wire representation, per https://xspf.org/spec. Durations are
// milliseconds; ISRCs travel in <identifier> with an "isrc:" prefix.
type xspfPlaylist struct {
	XMLName    xml.Name      `xml:"playlist"`
	Version    string        `xml:"version,attr"`
	Xmlns      string        `xml:"xmlns,attr,omitempty"`
	Title      string        `xml:"title,omitempty"`
	Creator    string        `xml:"creator,omitempty"`
	Annotation string        `xml:"annotation,omitempty"`
	TrackList  xspfTrackList `xml:"trackList"`
}

type xspfTrackList struct {
	Tracks []xspfTrack `xml:"track"`
}

type xspfTrack struct {
	Location   string `xml:"location,omitempty"`
	Identifier string `xml:"identifier,omitempty"`
	Title      string `xml:"title,omitempty"`
	Creator    string `xml:"creator,omitempty"`
	Album      string `xml:"album,omitempty"`
	Duration   int    `xml:"duration,omitempty"`
}

func parseXSPF(text string) (*ParseResult, error) {
	var doc xspfPlaylist
	if err := xml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid XSPF document: %v", shared.ErrInvalidInput, err)
	}

	result := &ParseResult{Playlist: models.Playlist{
		Name:        doc.Title,
		Description: doc.Annotation,
		Creator:     doc.Creator,
	}}
	if result.Playlist.Name == "" {
		result.Playlist.Name = "Imported Playlist"
	}

	for i, track := range doc.TrackList.Tracks {
		if track.Title == "" && track.Creator == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("track %d: missing title and creator, skipped", i+1))
			continue
		}
		result.Playlist.Songs = append(result.Playlist.Songs, models.Song{
			Title:    track.Title,
			Artist:   track.Creator,
			Album:    track.Album,
			Duration: track.Duration / 1000,
			ISRC:     strings.TrimPrefix(track.Identifier, "isrc:"),
			URL:      track.Location,
		})
	}

	return result, nil
}

func renderXSPF(playlist models.Playlist) (string, error) {
	doc := xspfPlaylist{
		Version:    "1",
		Xmlns:      "http://xspf.org/ns/0/",
		Title:      playlist.Name,
		Creator:    playlist.Creator,
		Annotation: playlist.Description,
	}

	for _, song := range playlist.Songs {
		track := xspfTrack{
			Location: song.URL,
			Title:    song.Title,
			Creator:  song.Artist,
			Album:    song.Album,
			Duration: song.Duration * 1000,
		}
		if song.ISRC != "" {
			track.Identifier = "isrc:" + song.ISRC
		}
		doc.TrackList.Tracks = append(doc.TrackList.Tracks, track)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render XSPF: %w", err)
	}

	return xml.Header + string(out) + "\n", nil
}
