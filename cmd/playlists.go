package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/castafiore/tunebridge/internal/jobs"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// PlaylistList prints the stored playlists for an owner.
func (r *Runner) PlaylistList(ctx context.Context, cmd *cli.Command) error {
	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	records, err := p.playlists.List(cmd.String("owner"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, true)
	}

	if len(records) == 0 {
		r.writePlain("No playlists found\n")
		return nil
	}

	for _, record := range records {
		r.writePlain("%s  %-30s  %d songs  (%s)\n", record.ID, record.Name, record.SongCount, record.Platform)
	}

	return nil
}

// PlaylistShow prints a playlist's metadata and songs in order.
func (r *Runner) PlaylistShow(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.StringArg("playlist")
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	record, err := p.playlists.Get(playlistID)
	if err != nil {
		return err
	}

	songs, err := p.playlists.Songs(playlistID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"playlist": record, "songs": songs}, true)
	}

	r.writePlainHeader(record.Name)
	if record.Description != "" {
		r.writePlain("%s\n", record.Description)
	}
	r.writePlain("Platform: %s  Songs: %d\n\n", record.Platform, len(songs))

	for i, song := range songs {
		r.writePlain("%3d. %s - %s", i+1, song.Artist, song.Title)
		if song.Album != "" {
			r.writePlain(" (%s)", song.Album)
		}
		if song.Duration > 0 {
			r.writePlain("  [%s]", shared.FormatDuration(song.Duration))
		}
		r.writePlain("\n")
	}

	return nil
}

// PlaylistDiff compares two stored playlists by song identity and
// reports the overlap and the differences in both directions.
func (r *Runner) PlaylistDiff(ctx context.Context, cmd *cli.Command) error {
	sourceID := cmd.StringArg("source")
	destID := cmd.StringArg("dest")
	if sourceID == "" || destID == "" {
		return fmt.Errorf("%w: source and dest playlist ids", shared.ErrMissingArgument)
	}

	p, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer p.Close()

	source, err := loadPlaylist(p, sourceID)
	if err != nil {
		return err
	}
	dest, err := loadPlaylist(p, destID)
	if err != nil {
		return err
	}

	result := jobs.Compare(source, dest)

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	r.writePlain("✓ Source: %s (%d songs)\n", source.Name, len(source.Songs))
	r.writePlain("✓ Destination: %s (%d songs)\n\n", dest.Name, len(dest.Songs))

	r.writePlainHeader("Comparison Results")
	r.writePlain("Matched: %d songs\n", result.MatchedCount)
	r.writePlain("Missing from destination: %d songs\n", len(result.MissingInDest))
	r.writePlain("Extra in destination: %d songs\n\n", len(result.ExtraInDest))

	if len(result.MissingInDest) > 0 {
		r.writePlain("Missing from destination:\n")
		writeSongList(r, result.MissingInDest)
		r.writePlain("\n")
	}

	if len(result.ExtraInDest) > 0 {
		r.writePlain("Extra in destination (not in source):\n")
		writeSongList(r, result.ExtraInDest)
	}

	return nil
}

func loadPlaylist(p *pipeline, playlistID string) (models.Playlist, error) {
	record, err := p.playlists.Get(playlistID)
	if err != nil {
		return models.Playlist{}, err
	}

	songs, err := p.playlists.Songs(playlistID)
	if err != nil {
		return models.Playlist{}, err
	}

	return models.Playlist{
		Name:        record.Name,
		Description: record.Description,
		Creator:     record.Creator,
		Platform:    record.Platform,
		Songs:       songs,
	}, nil
}

func writeSongList(r *Runner, songs []models.Song) {
	for i, song := range songs {
		r.writePlain("  %d. %s - %s", i+1, song.Artist, song.Title)
		if song.Album != "" {
			r.writePlain(" (%s)", song.Album)
		}
		r.writePlain("\n")
	}
}

func playlistCommand(r *Runner) *cli.Command {
	ownerFlag := &cli.StringFlag{
		Name:  "owner",
		Usage: "Owner scope for playlists",
		Value: defaultOwner,
	}
	jsonFlag := &cli.BoolFlag{
		Name:  "json",
		Usage: "Emit JSON instead of plain text",
	}

	return &cli.Command{
		Name:  "playlist",
		Usage: "Inspect and compare stored playlists",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List stored playlists",
				Flags:  []cli.Flag{ownerFlag, jsonFlag},
				Action: r.PlaylistList,
			},
			{
				Name:      "show",
				Usage:     "Show a playlist and its songs",
				Arguments: []cli.Argument{&cli.StringArg{Name: "playlist"}},
				Flags:     []cli.Flag{jsonFlag},
				Action:    r.PlaylistShow,
			},
			{
				Name:      "diff",
				Usage:     "Compare two playlists by song identity",
				Arguments: []cli.Argument{&cli.StringArg{Name: "source"}, &cli.StringArg{Name: "dest"}},
				Flags:     []cli.Flag{jsonFlag},
				Action:    r.PlaylistDiff,
			},
		},
	}
}
