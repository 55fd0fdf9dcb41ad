package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// DownloadJobRepository implements models.Repository[*models.DownloadJob].
type DownloadJobRepository struct {
	db *sql.DB
}

// NewDownloadJobRepository creates a new DownloadJobRepository with the given database connection
func NewDownloadJobRepository(db *sql.DB) *DownloadJobRepository {
	return &DownloadJobRepository{db: db}
}

const downloadJobColumns = `
	id, sequence, owner_id, service, status, total_items, completed_items,
	failed_items, queue, pending_organization, error_message, started_at,
	completed_at, created_at, updated_at
`

// Create inserts a new download job with a generated id and sequence.
func (r *DownloadJobRepository) Create(job *models.DownloadJob) error {
	sequence, err := NextSequence(r.db, "download_jobs")
	if err != nil {
		return err
	}

	job.SetID(shared.GenerateID())
	job.SetSequence(sequence)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	queue, err := marshalJSON(job.Queue(), len(job.Queue()) == 0)
	if err != nil {
		return err
	}
	pendingOrg, err := marshalJSON(job.PendingOrganization(), job.PendingOrganization() == nil)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO download_jobs (`+downloadJobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID(), sequence, job.OwnerID(), job.Service(), job.Status(),
		job.TotalItems(), job.CompletedItems(), job.FailedItems(),
		queue, pendingOrg, nullable(job.ErrorMessage()),
		job.StartedAt(), job.CompletedAt(), job.CreatedAt(), job.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert download job: %w", err)
	}
	return nil
}

// Get retrieves a download job by id.
func (r *DownloadJobRepository) Get(id string) (*models.DownloadJob, error) {
	row := r.db.QueryRow("SELECT "+downloadJobColumns+" FROM download_jobs WHERE id = ?", id)
	job, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: download job %s", shared.ErrJobNotFound, id)
	}
	return job, err
}

// Update persists the job's current state.
func (r *DownloadJobRepository) Update(job *models.DownloadJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	queue, err := marshalJSON(job.Queue(), len(job.Queue()) == 0)
	if err != nil {
		return err
	}
	pendingOrg, err := marshalJSON(job.PendingOrganization(), job.PendingOrganization() == nil)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(`
		UPDATE download_jobs
		SET status = ?, total_items = ?, completed_items = ?, failed_items = ?,
			queue = ?, pending_organization = ?, error_message = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`,
		job.Status(), job.TotalItems(), job.CompletedItems(), job.FailedItems(),
		queue, pendingOrg, nullable(job.ErrorMessage()),
		job.StartedAt(), job.CompletedAt(), now,
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update download job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: download job %s", shared.ErrJobNotFound, job.ID())
	}
	return nil
}

// Delete removes a download job (manual cleanup only).
func (r *DownloadJobRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM download_jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete download job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: download job %s", shared.ErrJobNotFound, id)
	}
	return nil
}

// List retrieves download jobs matching the criteria, newest first.
// Supported criteria: owner_id, status, service.
func (r *DownloadJobRepository) List(criteria map[string]any) ([]*models.DownloadJob, error) {
	query := "SELECT " + downloadJobColumns + " FROM download_jobs WHERE 1=1"
	args := []any{}

	if ownerID, ok := criteria["owner_id"].(string); ok && ownerID != "" {
		query += " AND owner_id = ?"
		args = append(args, ownerID)
	}
	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if service, ok := criteria["service"].(string); ok && service != "" {
		query += " AND service = ?"
		args = append(args, service)
	}
	query += " ORDER BY sequence DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query download jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.DownloadJob
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

func (r *DownloadJobRepository) scan(row scanner) (*models.DownloadJob, error) {
	var (
		id, ownerID, service, status  string
		sequence                      int
		total, completed, failed      int
		queue, pendingOrg             sql.NullString
		errorMessage                  sql.NullString
		startedAt, completedAt        sql.NullTime
		createdAt, updatedAt          time.Time
	)

	err := row.Scan(
		&id, &sequence, &ownerID, &service, &status, &total, &completed,
		&failed, &queue, &pendingOrg, &errorMessage, &startedAt, &completedAt,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan download job: %w", err)
	}

	job := models.NewDownloadJob(sequence, ownerID, models.DownloadService(service))
	job.SetID(id)
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)
	job.SetStatus(models.JobStatus(status))
	job.SetErrorMessage(errorMessage.String)

	var items []models.DownloadQueueItem
	if err := unmarshalJSON(queue, &items); err != nil {
		return nil, err
	}
	job.SetQueue(items)
	job.SetItemCounts(total, completed, failed)

	if pendingOrg.Valid && pendingOrg.String != "" {
		var org models.PendingOrganization
		if err := unmarshalJSON(pendingOrg, &org); err != nil {
			return nil, err
		}
		job.SetPendingOrganization(&org)
	}

	if startedAt.Valid {
		job.SetStartedAt(&startedAt.Time)
	}
	if completedAt.Valid {
		job.SetCompletedAt(&completedAt.Time)
	}

	return job, nil
}
