package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// ImportJobRepository implements models.Repository[*models.ImportJob].
type ImportJobRepository struct {
	db *sql.DB
}

// NewImportJobRepository creates a new ImportJobRepository with the given database connection
func NewImportJobRepository(db *sql.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

const importJobColumns = `
	id, sequence, owner_id, format, target_platform, target_playlist_id,
	status, total_songs, processed_songs, matched_songs, unmatched_songs,
	pending_review_songs, match_results, warnings, error_message,
	started_at, completed_at, created_at, updated_at
`

// Create inserts a new import job with a generated id and sequence.
func (r *ImportJobRepository) Create(job *models.ImportJob) error {
	sequence, err := NextSequence(r.db, "import_jobs")
	if err != nil {
		return err
	}

	job.SetID(shared.GenerateID())
	job.SetSequence(sequence)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	matchResults, err := marshalJSON(job.MatchResults(), len(job.MatchResults()) == 0)
	if err != nil {
		return err
	}
	warnings, err := marshalJSON(job.Warnings(), len(job.Warnings()) == 0)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO import_jobs (`+importJobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID(), sequence, job.OwnerID(), job.Format(), job.TargetPlatform(),
		nullable(job.TargetPlaylistID()), job.Status(), job.TotalSongs(),
		job.ProcessedSongs(), job.MatchedSongs(), job.UnmatchedSongs(),
		job.PendingReviewSongs(), matchResults, warnings,
		nullable(job.ErrorMessage()), job.StartedAt(), job.CompletedAt(),
		job.CreatedAt(), job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert import job: %w", err)
	}
	return nil
}

// Get retrieves an import job by id.
func (r *ImportJobRepository) Get(id string) (*models.ImportJob, error) {
	row := r.db.QueryRow("SELECT "+importJobColumns+" FROM import_jobs WHERE id = ?", id)
	job, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: import job %s", shared.ErrJobNotFound, id)
	}
	return job, err
}

// Update persists the job's current state. Controllers call this after
// every durable progress step so clients can poll mid-run.
func (r *ImportJobRepository) Update(job *models.ImportJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	matchResults, err := marshalJSON(job.MatchResults(), len(job.MatchResults()) == 0)
	if err != nil {
		return err
	}
	warnings, err := marshalJSON(job.Warnings(), len(job.Warnings()) == 0)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(`
		UPDATE import_jobs
		SET target_playlist_id = ?, status = ?, total_songs = ?,
			processed_songs = ?, matched_songs = ?, unmatched_songs = ?,
			pending_review_songs = ?, match_results = ?, warnings = ?,
			error_message = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`,
		nullable(job.TargetPlaylistID()), job.Status(), job.TotalSongs(),
		job.ProcessedSongs(), job.MatchedSongs(), job.UnmatchedSongs(),
		job.PendingReviewSongs(), matchResults, warnings,
		nullable(job.ErrorMessage()), job.StartedAt(), job.CompletedAt(), now,
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update import job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: import job %s", shared.ErrJobNotFound, job.ID())
	}
	return nil
}

// Delete removes an import job. Jobs are an audit trail; this exists for
// manual cleanup, controllers never call it.
func (r *ImportJobRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM import_jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete import job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: import job %s", shared.ErrJobNotFound, id)
	}
	return nil
}

// List retrieves import jobs matching the criteria, newest first.
// Supported criteria: owner_id, status.
func (r *ImportJobRepository) List(criteria map[string]any) ([]*models.ImportJob, error) {
	query := "SELECT " + importJobColumns + " FROM import_jobs WHERE 1=1"
	args := []any{}

	if ownerID, ok := criteria["owner_id"].(string); ok && ownerID != "" {
		query += " AND owner_id = ?"
		args = append(args, ownerID)
	}
	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY sequence DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ImportJob
	for rows.Next() {
		job, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}

func (r *ImportJobRepository) scan(row scanner) (*models.ImportJob, error) {
	var (
		id, ownerID, format, targetPlatform string
		sequence                            int
		targetPlaylistID, errorMessage      sql.NullString
		status                              string
		total, processed, matched           int
		unmatched, pending                  int
		matchResults, warnings              sql.NullString
		startedAt, completedAt              sql.NullTime
		createdAt, updatedAt                time.Time
	)

	err := row.Scan(
		&id, &sequence, &ownerID, &format, &targetPlatform, &targetPlaylistID,
		&status, &total, &processed, &matched, &unmatched, &pending,
		&matchResults, &warnings, &errorMessage, &startedAt, &completedAt,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan import job: %w", err)
	}

	job := models.NewImportJob(sequence, ownerID, format, targetPlatform)
	job.SetID(id)
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)
	job.SetStatus(models.JobStatus(status))
	job.SetTargetPlaylistID(targetPlaylistID.String)
	job.SetTotalSongs(total)
	job.SetCounters(processed, matched, unmatched, pending)
	job.SetErrorMessage(errorMessage.String)

	var results []models.SongMatchResult
	if err := unmarshalJSON(matchResults, &results); err != nil {
		return nil, err
	}
	job.SetMatchResults(results)

	var warningList []string
	if err := unmarshalJSON(warnings, &warningList); err != nil {
		return nil, err
	}
	job.SetWarnings(warningList)

	if startedAt.Valid {
		job.SetStartedAt(&startedAt.Time)
	}
	if completedAt.Valid {
		job.SetCompletedAt(&completedAt.Time)
	}

	return job, nil
}
