package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// ExportJobRepository implements models.Repository[*models.ExportJob].
type ExportJobRepository struct {
	db *sql.DB
}

// NewExportJobRepository creates a new ExportJobRepository with the given database connection
func NewExportJobRepository(db *sql.DB) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

const exportJobColumns = `
	id, sequence, owner_id, format, source_playlist_id, status,
	exported_data, filename, error_message, started_at, completed_at,
	created_at, updated_at
`

// Create inserts a new export job with a generated id and sequence.
func (r *ExportJobRepository) Create(job *models.ExportJob) error {
	sequence, err := NextSequence(r.db, "export_jobs")
	if err != nil {
		return err
	}

	job.SetID(shared.GenerateID())
	job.SetSequence(sequence)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO export_jobs (`+exportJobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID(), sequence, job.OwnerID(), job.Format(), job.SourcePlaylistID(),
		job.Status(), nullable(job.ExportedData()), nullable(job.Filename()),
		nullable(job.ErrorMessage()), job.StartedAt(), job.CompletedAt(),
		job.CreatedAt(), job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert export job: %w", err)
	}
	return nil
}

// Get retrieves an export job by id.
func (r *ExportJobRepository) Get(id string) (*models.ExportJob, error) {
	row := r.db.QueryRow("SELECT "+exportJobColumns+" FROM export_jobs WHERE id = ?", id)
	job, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: export job %s", shared.ErrJobNotFound, id)
	}
	return job, err
}

// Update persists the job's current state.
func (r *ExportJobRepository) Update(job *models.ExportJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	result, err := r.db.Exec(`
		UPDATE export_jobs
		SET status = ?, exported_data = ?, filename = ?, error_message = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`,
		job.Status(), nullable(job.ExportedData()), nullable(job.Filename()),
		nullable(job.ErrorMessage()), job.StartedAt(), job.CompletedAt(), now,
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update export job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: export job %s", shared.ErrJobNotFound, job.ID())
	}
	return nil
}

// Delete removes an export job (manual cleanup only).
func (r *ExportJobRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM export_jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete export job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: export job %s", shared.ErrJobNotFound, id)
	}
	return nil
}

// List retrieves export jobs matching the criteria, newest first.
// Supported criteria: owner_id, status.
func (r *ExportJobRepository) List(criteria map[string]any) ([]*models.ExportJob, error) {
	query := "SELECT " + exportJobColumns + " FROM export_jobs WHERE 1=1"
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
		return nil, fmt.Errorf("failed to query export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ExportJob
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

func (r *ExportJobRepository) scan(row scanner) (*models.ExportJob, error) {
	var (
		id, ownerID, format, sourcePlaylistID string
		sequence                              int
		status                                string
		exportedData, filename, errorMessage  sql.NullString
		startedAt, completedAt                sql.NullTime
		createdAt, updatedAt                  time.Time
	)

	err := row.Scan(
		&id, &sequence, &ownerID, &format, &sourcePlaylistID, &status,
		&exportedData, &filename, &errorMessage, &startedAt, &completedAt,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan export job: %w", err)
	}

	job := models.NewExportJob(sequence, ownerID, format, sourcePlaylistID)
	job.SetID(id)
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)
	job.SetStatus(models.JobStatus(status))
	job.SetExportedData(exportedData.String)
	job.SetFilename(filename.String)
	job.SetErrorMessage(errorMessage.String)

	if startedAt.Valid {
		job.SetStartedAt(&startedAt.Time)
	}
	if completedAt.Valid {
		job.SetCompletedAt(&completedAt.Time)
	}

	return job, nil
}
