package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// PlaylistRecord is a stored playlist's metadata row.
type PlaylistRecord struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	Creator     string
	Platform    string
	SongCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PlaylistRepository provides position-ordered playlist storage.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create stores a playlist and its songs in order. A name collision for
// the same owner is reported as ErrDuplicatePlaylist.
func (r *PlaylistRepository) Create(ownerID string, playlist models.Playlist) (*PlaylistRecord, error) {
	var exists bool
	err := r.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM playlists WHERE owner_id = ? AND name = ?)",
		ownerID, playlist.Name,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check playlist name: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", shared.ErrDuplicatePlaylist, playlist.Name)
	}

	sequence, err := NextSequence(r.db, "playlists")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &PlaylistRecord{
		ID:          shared.GenerateID(),
		OwnerID:     ownerID,
		Name:        playlist.Name,
		Description: playlist.Description,
		Creator:     playlist.Creator,
		Platform:    playlist.Platform,
		SongCount:   len(playlist.Songs),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO playlists (id, sequence, owner_id, name, description, creator, platform, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, sequence, ownerID, record.Name, nullable(record.Description), nullable(record.Creator), record.Platform, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert playlist: %w", err)
	}

	for i, song := range playlist.Songs {
		if err := insertSong(tx, record.ID, i, song, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return record, nil
}

// Get retrieves a playlist's metadata by id.
func (r *PlaylistRepository) Get(id string) (*PlaylistRecord, error) {
	record := &PlaylistRecord{}
	var description, creator sql.NullString

	err := r.db.QueryRow(`
		SELECT p.id, p.owner_id, p.name, p.description, p.creator, p.platform, p.created_at, p.updated_at,
			(SELECT COUNT(*) FROM playlist_songs ps WHERE ps.playlist_id = p.id)
		FROM playlists p WHERE p.id = ?
	`, id).Scan(
		&record.ID, &record.OwnerID, &record.Name, &description, &creator,
		&record.Platform, &record.CreatedAt, &record.UpdatedAt, &record.SongCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	record.Description = description.String
	record.Creator = creator.String
	return record, nil
}

// List retrieves all playlists for an owner, newest first.
func (r *PlaylistRepository) List(ownerID string) ([]*PlaylistRecord, error) {
	rows, err := r.db.Query(`
		SELECT p.id, p.owner_id, p.name, p.description, p.creator, p.platform, p.created_at, p.updated_at,
			(SELECT COUNT(*) FROM playlist_songs ps WHERE ps.playlist_id = p.id)
		FROM playlists p WHERE p.owner_id = ?
		ORDER BY p.sequence DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var records []*PlaylistRecord
	for rows.Next() {
		record := &PlaylistRecord{}
		var description, creator sql.NullString
		err := rows.Scan(
			&record.ID, &record.OwnerID, &record.Name, &description, &creator,
			&record.Platform, &record.CreatedAt, &record.UpdatedAt, &record.SongCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		record.Description = description.String
		record.Creator = creator.String
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// Songs retrieves a playlist's songs ordered by position.
func (r *PlaylistRepository) Songs(playlistID string) ([]models.Song, error) {
	rows, err := r.db.Query(`
		SELECT title, artist, album, duration, isrc, platform, platform_id, url
		FROM playlist_songs WHERE playlist_id = ?
		ORDER BY position ASC
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var songs []models.Song
	for rows.Next() {
		var song models.Song
		var album, isrc, platform, platformID, url sql.NullString
		var duration sql.NullInt64

		if err := rows.Scan(&song.Title, &song.Artist, &album, &duration, &isrc, &platform, &platformID, &url); err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		song.Album = album.String
		song.Duration = int(duration.Int64)
		song.ISRC = isrc.String
		song.Platform = platform.String
		song.PlatformID = platformID.String
		song.URL = url.String
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return songs, nil
}

// AppendSong adds a song after the playlist's existing songs. A song
// already present by platform identity is reported as ErrDuplicateSong.
func (r *PlaylistRepository) AppendSong(playlistID string, song models.Song) (int, error) {
	if song.Platform != "" && song.PlatformID != "" {
		present, err := r.HasSong(playlistID, song.Platform, song.PlatformID)
		if err != nil {
			return 0, err
		}
		if present {
			return 0, fmt.Errorf("%w: %s - %s", shared.ErrDuplicateSong, song.Artist, song.Title)
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRow(
		"SELECT COALESCE(MAX(position), -1) + 1 FROM playlist_songs WHERE playlist_id = ?",
		playlistID,
	).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("failed to compute position: %w", err)
	}

	if err := insertSong(tx, playlistID, position, song, time.Now()); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return position, nil
}

// HasSong reports whether the playlist already contains the song by
// platform identity.
func (r *PlaylistRepository) HasSong(playlistID, platform, platformID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM playlist_songs
			WHERE playlist_id = ? AND platform = ? AND platform_id = ?
		)
	`, playlistID, platform, platformID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check song membership: %w", err)
	}
	return exists, nil
}

func insertSong(tx *sql.Tx, playlistID string, position int, song models.Song, now time.Time) error {
	var duration any
	if song.Duration > 0 {
		duration = song.Duration
	}

	_, err := tx.Exec(`
		INSERT INTO playlist_songs (playlist_id, position, title, artist, album, duration, isrc, platform, platform_id, url, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, playlistID, position, song.Title, song.Artist, nullable(song.Album), duration,
		nullable(song.ISRC), nullable(song.Platform), nullable(song.PlatformID), nullable(song.URL), now)
	if err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}
	return nil
}
