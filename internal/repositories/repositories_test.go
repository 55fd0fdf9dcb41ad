package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func testPlaylist(name string) models.Playlist {
	return models.Playlist{
		Name:     name,
		Creator:  "tester",
		Platform: "local",
		Songs: []models.Song{
			{Title: "Everlong", Artist: "Foo Fighters", Album: "The Colour and the Shape", Duration: 250, Platform: "local", PlatformID: "s1"},
			{Title: "Dreams", Artist: "Fleetwood Mac", Duration: 257, Platform: "local", PlatformID: "s2"},
		},
	}
}

func TestNextSequence(t *testing.T) {
	db := newTestDB(t)

	first, err := NextSequence(db, "import_jobs")
	if err != nil {
		t.Fatalf("NextSequence failed: %v", err)
	}
	second, err := NextSequence(db, "import_jobs")
	if err != nil {
		t.Fatalf("NextSequence failed: %v", err)
	}
	if second != first+1 {
		t.Errorf("sequence should advance by 1: %d then %d", first, second)
	}

	other, err := NextSequence(db, "export_jobs")
	if err != nil {
		t.Fatalf("NextSequence failed: %v", err)
	}
	if other != 1 {
		t.Errorf("each table has its own counter, got %d", other)
	}
}

func TestPlaylistRepository(t *testing.T) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		record, err := repo.Create("owner", testPlaylist("Road Trip"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if record.ID == "" {
			t.Error("expected generated id")
		}

		got, err := repo.Get(record.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Name != "Road Trip" || got.SongCount != 2 {
			t.Errorf("unexpected record: %+v", got)
		}
	})

	t.Run("DuplicateName", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		if _, err := repo.Create("owner", testPlaylist("Mix")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if _, err := repo.Create("owner", testPlaylist("Mix")); !errors.Is(err, shared.ErrDuplicatePlaylist) {
			t.Errorf("expected ErrDuplicatePlaylist, got %v", err)
		}

		// Same name under a different owner is fine.
		if _, err := repo.Create("other", testPlaylist("Mix")); err != nil {
			t.Errorf("different owner should not collide: %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))
		if _, err := repo.Get("nope"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		for _, name := range []string{"first", "second", "third"} {
			if _, err := repo.Create("owner", models.Playlist{Name: name}); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		records, err := repo.List("owner")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected 3 playlists, got %d", len(records))
		}
		if records[0].Name != "third" || records[2].Name != "first" {
			t.Errorf("expected newest first, got %s .. %s", records[0].Name, records[2].Name)
		}
	})

	t.Run("SongsOrdered", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		record, err := repo.Create("owner", testPlaylist("Ordered"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		songs, err := repo.Songs(record.ID)
		if err != nil {
			t.Fatalf("Songs failed: %v", err)
		}
		if len(songs) != 2 {
			t.Fatalf("expected 2 songs, got %d", len(songs))
		}
		if songs[0].Title != "Everlong" || songs[1].Title != "Dreams" {
			t.Errorf("song order not preserved: %s, %s", songs[0].Title, songs[1].Title)
		}
		if songs[0].Duration != 250 {
			t.Errorf("expected duration preserved, got %d", songs[0].Duration)
		}
	})

	t.Run("AppendSong", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		record, err := repo.Create("owner", testPlaylist("Grows"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		position, err := repo.AppendSong(record.ID, models.Song{
			Title: "Time", Artist: "Pink Floyd", Platform: "local", PlatformID: "s3",
		})
		if err != nil {
			t.Fatalf("AppendSong failed: %v", err)
		}
		if position != 2 {
			t.Errorf("expected position 2, got %d", position)
		}

		// Appending the same platform identity again is a duplicate.
		if _, err := repo.AppendSong(record.ID, models.Song{
			Title: "Time", Artist: "Pink Floyd", Platform: "local", PlatformID: "s3",
		}); !errors.Is(err, shared.ErrDuplicateSong) {
			t.Errorf("expected ErrDuplicateSong, got %v", err)
		}

		// Songs without a platform identity cannot be deduplicated.
		if _, err := repo.AppendSong(record.ID, models.Song{Title: "Unknown", Artist: "Someone"}); err != nil {
			t.Errorf("unresolved song should append: %v", err)
		}
	})

	t.Run("HasSong", func(t *testing.T) {
		repo := NewPlaylistRepository(newTestDB(t))

		record, err := repo.Create("owner", testPlaylist("Membership"))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		present, err := repo.HasSong(record.ID, "local", "s1")
		if err != nil {
			t.Fatalf("HasSong failed: %v", err)
		}
		if !present {
			t.Error("expected song present")
		}

		present, err = repo.HasSong(record.ID, "local", "absent")
		if err != nil {
			t.Fatalf("HasSong failed: %v", err)
		}
		if present {
			t.Error("expected song absent")
		}
	})
}

func TestImportJobRepository(t *testing.T) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := NewImportJobRepository(newTestDB(t))

		job := models.NewImportJob(0, "owner", "m3u", "local")
		job.SetTotalSongs(2)
		job.SetMatchResults([]models.SongMatchResult{
			{Song: models.Song{Title: "Everlong", Artist: "Foo Fighters"}, Status: models.MatchStatusMatched,
				SelectedMatch: &models.SelectedMatch{Platform: "local", PlatformID: "s1"}},
			{Song: models.Song{Title: "Dreams", Artist: "Fleetwood Mac"}, Status: models.MatchStatusPendingReview},
		})
		job.RecountSongs()
		job.AddWarning("line 3: skipped")

		if err := repo.Create(job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if job.ID() == "" || job.Sequence() == 0 {
			t.Error("Create should assign id and sequence")
		}

		got, err := repo.Get(job.ID())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.TotalSongs() != 2 || got.MatchedSongs() != 1 || got.PendingReviewSongs() != 1 {
			t.Errorf("counters not persisted: %d total, %d matched, %d pending",
				got.TotalSongs(), got.MatchedSongs(), got.PendingReviewSongs())
		}
		if len(got.MatchResults()) != 2 {
			t.Fatalf("match results not persisted, got %d", len(got.MatchResults()))
		}
		if got.MatchResults()[0].SelectedMatch == nil {
			t.Error("selected match lost in round trip")
		}
		if len(got.Warnings()) != 1 {
			t.Errorf("warnings not persisted: %v", got.Warnings())
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewImportJobRepository(newTestDB(t))

		job := models.NewImportJob(0, "owner", "json", "local")
		if err := repo.Create(job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		now := time.Now()
		job.SetStatus(models.JobStatusCompleted)
		job.SetCompletedAt(&now)
		job.SetTargetPlaylistID("pl-1")

		if err := repo.Update(job); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, err := repo.Get(job.ID())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status() != models.JobStatusCompleted {
			t.Errorf("status not persisted: %s", got.Status())
		}
		if got.CompletedAt() == nil {
			t.Error("completed_at not persisted")
		}
		if got.TargetPlaylistID() != "pl-1" {
			t.Errorf("target playlist not persisted: %s", got.TargetPlaylistID())
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		repo := NewImportJobRepository(newTestDB(t))

		job := models.NewImportJob(1, "owner", "csv", "local")
		job.SetID("ghost")
		if err := repo.Update(job); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("ListFilters", func(t *testing.T) {
		repo := NewImportJobRepository(newTestDB(t))

		done := models.NewImportJob(0, "owner", "m3u", "local")
		done.SetStatus(models.JobStatusCompleted)
		if err := repo.Create(done); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		pending := models.NewImportJob(0, "owner", "m3u", "local")
		if err := repo.Create(pending); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		all, err := repo.List(map[string]any{"owner_id": "owner"})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 jobs, got %d", len(all))
		}
		if all[0].ID() != pending.ID() {
			t.Error("expected newest job first")
		}

		completed, err := repo.List(map[string]any{"status": string(models.JobStatusCompleted)})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(completed) != 1 || completed[0].ID() != done.ID() {
			t.Errorf("status filter failed: %d jobs", len(completed))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewImportJobRepository(newTestDB(t))

		job := models.NewImportJob(0, "owner", "m3u", "local")
		if err := repo.Create(job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := repo.Delete(job.ID()); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(job.ID()); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound after delete, got %v", err)
		}
		if err := repo.Delete(job.ID()); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("double delete should report ErrJobNotFound, got %v", err)
		}
	})
}

func TestExportJobRepository(t *testing.T) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := NewExportJobRepository(newTestDB(t))

		job := models.NewExportJob(0, "owner", "xspf", "pl-1")
		if err := repo.Create(job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		job.SetStatus(models.JobStatusCompleted)
		job.SetExportedData("<playlist/>")
		job.SetFilename("Mix.xspf")
		if err := repo.Update(job); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, err := repo.Get(job.ID())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.ExportedData() != "<playlist/>" || got.Filename() != "Mix.xspf" {
			t.Errorf("export payload not persisted: %q %q", got.ExportedData(), got.Filename())
		}
		if got.SourcePlaylistID() != "pl-1" {
			t.Errorf("source playlist lost: %s", got.SourcePlaylistID())
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo := NewExportJobRepository(newTestDB(t))
		if _, err := repo.Get("ghost"); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("ListByOwner", func(t *testing.T) {
		repo := NewExportJobRepository(newTestDB(t))

		mine := models.NewExportJob(0, "owner", "json", "pl-1")
		if err := repo.Create(mine); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		theirs := models.NewExportJob(0, "other", "json", "pl-2")
		if err := repo.Create(theirs); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		list, err := repo.List(map[string]any{"owner_id": "owner"})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list) != 1 || list[0].ID() != mine.ID() {
			t.Errorf("owner filter failed: %d jobs", len(list))
		}
	})
}

func TestDownloadJobRepository(t *testing.T) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := NewDownloadJobRepository(newTestDB(t))

		job := models.NewDownloadJob(0, "owner", models.ServiceTrackFetcher)
		job.SetQueue([]models.DownloadQueueItem{
			{ID: "i1", Title: "Everlong", Artist: "Foo Fighters", Service: models.ServiceTrackFetcher, Status: models.ItemStatusCompleted, NeedsManualOrganization: true, DownloadedPath: "/dl/everlong.mp3"},
			{ID: "i2", Title: "Dreams", Artist: "Fleetwood Mac", Service: models.ServiceCatalogManager, Status: models.ItemStatusFailed, Error: "no candidates"},
		})
		job.RecountItems()
		job.SetPendingOrganization(&models.PendingOrganization{Files: []string{"/dl/everlong.mp3"}})

		if err := repo.Create(job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := repo.Get(job.ID())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.TotalItems() != 2 || got.CompletedItems() != 1 || got.FailedItems() != 1 {
			t.Errorf("counters not persisted: %d/%d/%d", got.TotalItems(), got.CompletedItems(), got.FailedItems())
		}

		queue := got.Queue()
		if len(queue) != 2 || queue[0].ID != "i1" || queue[1].ID != "i2" {
			t.Fatalf("queue order not preserved: %+v", queue)
		}
		if !queue[0].NeedsManualOrganization || queue[0].DownloadedPath != "/dl/everlong.mp3" {
			t.Errorf("item fields lost: %+v", queue[0])
		}
		if queue[1].Error != "no candidates" {
			t.Errorf("item error lost: %+v", queue[1])
		}

		pending := got.PendingOrganization()
		if pending == nil || len(pending.Files) != 1 {
			t.Errorf("pending organization not persisted: %+v", pending)
		}
	})

	t.Run("EmptyQueueColumns", func(t *testing.T) {
		repo := NewDownloadJobRepository(newTestDB(t))

		job := models.NewDownloadJob(0, "owner", models.ServiceCatalogManager)
		if err := repo.Create(job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		got, err := repo.Get(job.ID())
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got.Queue()) != 0 || got.PendingOrganization() != nil {
			t.Errorf("expected empty queue and nil organization, got %+v", got)
		}
	})

	t.Run("ListByStatus", func(t *testing.T) {
		repo := NewDownloadJobRepository(newTestDB(t))

		running := models.NewDownloadJob(0, "owner", models.ServiceTrackFetcher)
		running.SetStatus(models.JobStatusProcessing)
		if err := repo.Create(running); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		done := models.NewDownloadJob(0, "owner", models.ServiceTrackFetcher)
		done.SetStatus(models.JobStatusCompleted)
		if err := repo.Create(done); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		list, err := repo.List(map[string]any{"status": string(models.JobStatusProcessing)})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list) != 1 || list[0].ID() != running.ID() {
			t.Errorf("status filter failed: %d jobs", len(list))
		}
	})
}
