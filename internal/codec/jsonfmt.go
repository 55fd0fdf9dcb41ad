package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// jsonPlaylist is the structured-object wire format.
type jsonPlaylist struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Creator     string      `json:"creator,omitempty"`
	Platform    string      `json:"platform,omitempty"`
	Tracks      []jsonTrack `json:"tracks"`
}

type jsonTrack struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration,omitempty"`
	ISRC     string `json:"isrc,omitempty"`
	URL      string `json:"url,omitempty"`
}

// parseJSON accepts either a playlist document or a bare array of tracks.
func parseJSON(text string) (*ParseResult, error) {
	trimmed := strings.TrimSpace(text)

	var doc jsonPlaylist
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &doc.Tracks); err != nil {
			return nil, fmt.Errorf("%w: invalid JSON track array: %v", shared.ErrInvalidInput, err)
		}
	} else if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON playlist: %v", shared.ErrInvalidInput, err)
	}

	result := &ParseResult{Playlist: models.Playlist{
		Name:        doc.Name,
		Description: doc.Description,
		Creator:     doc.Creator,
		Platform:    doc.Platform,
	}}
	if result.Playlist.Name == "" {
		result.Playlist.Name = "Imported Playlist"
	}

	for i, track := range doc.Tracks {
		if track.Title == "" && track.Artist == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("track %d: missing title and artist, skipped", i+1))
			continue
		}
		result.Playlist.Songs = append(result.Playlist.Songs, models.Song{
			Title:    track.Title,
			Artist:   track.Artist,
			Album:    track.Album,
			Duration: track.Duration,
			ISRC:     track.ISRC,
			URL:      track.URL,
		})
	}

	return result, nil
}

func renderJSON(playlist models.Playlist) (string, error) {
	doc := jsonPlaylist{
		Name:        playlist.Name,
		Description: playlist.Description,
		Creator:     playlist.Creator,
		Platform:    playlist.Platform,
		Tracks:      make([]jsonTrack, 0, len(playlist.Songs)),
	}

	for _, song := range playlist.Songs {
		doc.Tracks = append(doc.Tracks, jsonTrack{
			Title:    song.Title,
			Artist:   song.Artist,
			Album:    song.Album,
			Duration: song.Duration,
			ISRC:     song.ISRC,
			URL:      song.URL,
		})
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render JSON: %w", err)
	}

	return string(out) + "\n", nil
}
