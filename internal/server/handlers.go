package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/castafiore/tunebridge/internal/download"
	"github.com/castafiore/tunebridge/internal/jobs"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/shared"
)

// defaultOwner scopes jobs when no owner header is supplied, which is
// the common single-user deployment.
const defaultOwner = "local"

// APIHandler exposes the pipeline controllers over JSON. Implements the
// Handler interface for registration with a Router.
type APIHandler struct {
	imports   *jobs.ImportController
	exports   *jobs.ExportController
	downloads *download.Orchestrator
	logger    *log.Logger
	mux       *http.ServeMux
}

// NewAPIHandler creates an APIHandler over the given controllers.
func NewAPIHandler(imports *jobs.ImportController, exports *jobs.ExportController, downloads *download.Orchestrator, logger *log.Logger) *APIHandler {
	h := &APIHandler{
		imports:   imports,
		exports:   exports,
		downloads: downloads,
		logger:    logger,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /health", h.health)

	h.mux.HandleFunc("POST /api/imports", h.startImport)
	h.mux.HandleFunc("GET /api/imports", h.listImports)
	h.mux.HandleFunc("GET /api/imports/{id}", h.getImport)
	h.mux.HandleFunc("POST /api/imports/{id}/review", h.finalizeReview)
	h.mux.HandleFunc("POST /api/imports/{id}/cancel", h.cancelImport)

	h.mux.HandleFunc("POST /api/exports", h.startExport)
	h.mux.HandleFunc("GET /api/exports", h.listExports)
	h.mux.HandleFunc("GET /api/exports/{id}", h.getExport)
	h.mux.HandleFunc("GET /api/exports/{id}/download", h.downloadExport)

	h.mux.HandleFunc("POST /api/downloads", h.queueDownloads)
	h.mux.HandleFunc("GET /api/downloads", h.listDownloads)
	h.mux.HandleFunc("GET /api/downloads/status", h.downloadSnapshot)
	h.mux.HandleFunc("GET /api/downloads/{id}", h.getDownload)
	h.mux.HandleFunc("GET /api/downloads/{id}/report", h.downloadReport)
	h.mux.HandleFunc("POST /api/downloads/{id}/cancel", h.cancelDownload)
	h.mux.HandleFunc("POST /api/downloads/{id}/organized", h.markOrganized)

	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *APIHandler) Routes() []string {
	return []string{"/health", "/api/"}
}

func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *APIHandler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startImport parses the submitted playlist text and runs the import to
// its first resting state: completed, or awaiting review. The request
// stays open for the match pass; clients with large playlists can poll
// GET /api/imports/{id} from elsewhere meanwhile.
func (h *APIHandler) startImport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text     string `json:"text"`
		Filename string `json:"filename"`
		Format   string `json:"format"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if body.Text == "" {
		h.writeError(w, shared.ErrInvalidInput, "text is required")
		return
	}

	job, err := h.imports.StartImport(r.Context(), nil, owner(r), body.Text, body.Filename, body.Format)
	if err != nil && job == nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusCreated, importJobBody(job))
}

func (h *APIHandler) listImports(w http.ResponseWriter, r *http.Request) {
	list, err := h.imports.ListJobs(owner(r), models.JobStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	out := make([]any, 0, len(list))
	for _, job := range list {
		out = append(out, importJobBody(job))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) getImport(w http.ResponseWriter, r *http.Request) {
	job, err := h.imports.GetJob(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusOK, importJobBody(job))
}

func (h *APIHandler) finalizeReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Decisions []jobs.ReviewDecision `json:"decisions"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	job, err := h.imports.FinalizeReview(r.PathValue("id"), body.Decisions, nil)
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusOK, importJobBody(job))
}

func (h *APIHandler) cancelImport(w http.ResponseWriter, r *http.Request) {
	job, err := h.imports.Cancel(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusOK, importJobBody(job))
}

func (h *APIHandler) startExport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PlaylistID string `json:"playlist_id"`
		Format     string `json:"format"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	job, err := h.exports.ExportPlaylist(r.Context(), nil, owner(r), body.PlaylistID, body.Format)
	if err != nil && job == nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusCreated, exportJobBody(job))
}

func (h *APIHandler) listExports(w http.ResponseWriter, r *http.Request) {
	list, err := h.exports.ListJobs(owner(r), models.JobStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	out := make([]any, 0, len(list))
	for _, job := range list {
		out = append(out, exportJobBody(job))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) getExport(w http.ResponseWriter, r *http.Request) {
	job, err := h.exports.GetJob(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusOK, exportJobBody(job))
}

// downloadExport serves the export's stored bytes; nothing is re-rendered.
func (h *APIHandler) downloadExport(w http.ResponseWriter, r *http.Request) {
	filename, data, err := h.exports.DownloadExport(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *APIHandler) queueDownloads(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Songs                  []models.Song          `json:"songs"`
		Service                models.DownloadService `json:"service"`
		PreferCatalogForAlbums bool                   `json:"prefer_catalog_for_albums"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if len(body.Songs) == 0 {
		h.writeError(w, shared.ErrInvalidInput, "songs are required")
		return
	}

	var job *models.DownloadJob
	var err error
	if len(body.Songs) == 1 {
		job, err = h.downloads.QueueSingle(r.Context(), owner(r), body.Songs[0], body.Service)
	} else {
		job, err = h.downloads.QueueBatch(r.Context(), owner(r), body.Songs, download.Preferences{
			PreferCatalogForAlbums: body.PreferCatalogForAlbums,
			DefaultService:         body.Service,
		})
	}
	if err != nil && job == nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusCreated, downloadJobBody(job))
}

func (h *APIHandler) listDownloads(w http.ResponseWriter, r *http.Request) {
	list, err := h.downloads.ListJobs(owner(r), models.JobStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	out := make([]any, 0, len(list))
	for _, job := range list {
		out = append(out, downloadJobBody(job))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) getDownload(w http.ResponseWriter, r *http.Request) {
	job, err := h.downloads.GetQueueStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusOK, downloadJobBody(job))
}

func (h *APIHandler) downloadReport(w http.ResponseWriter, r *http.Request) {
	job, err := h.downloads.GetJob(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusOK, download.GenerateReport(job.Queue()))
}

// downloadSnapshot merges the live view of both back-ends.
func (h *APIHandler) downloadSnapshot(w http.ResponseWriter, r *http.Request) {
	items, err := h.downloads.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *APIHandler) cancelDownload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID string `json:"item_id"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	job, err := h.downloads.Cancel(r.Context(), r.PathValue("id"), body.ItemID)
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusOK, downloadJobBody(job))
}

func (h *APIHandler) markOrganized(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemID string `json:"item_id"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	job, err := h.downloads.MarkOrganized(r.PathValue("id"), body.ItemID)
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	h.writeJSON(w, http.StatusOK, downloadJobBody(job))
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		h.writeError(w, shared.ErrInvalidInput, "malformed JSON body")
		return false
	}
	return true
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func (h *APIHandler) writeError(w http.ResponseWriter, err error, detail string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrJobNotFound), errors.Is(err, shared.ErrPlaylistNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrUnsupportedFormat),
		errors.Is(err, shared.ErrUnknownFormat),
		errors.Is(err, shared.ErrEmptyPlaylist):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrJobTerminal):
		status = http.StatusConflict
	case errors.Is(err, shared.ErrServiceUnavailable):
		status = http.StatusBadGateway
	}

	message := err.Error()
	if detail != "" {
		message = detail
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		message = "internal server error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}

func owner(r *http.Request) string {
	if id := r.Header.Get("X-Owner-Id"); id != "" {
		return id
	}
	return defaultOwner
}

// Job response bodies. The job models expose accessors, not fields, so
// the handlers flatten them for JSON.

type jobTimes struct {
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func times(started, completed *time.Time, created, updated time.Time) jobTimes {
	return jobTimes{StartedAt: started, CompletedAt: completed, CreatedAt: created, UpdatedAt: updated}
}

func importJobBody(job *models.ImportJob) map[string]any {
	return map[string]any{
		"id":                   job.ID(),
		"owner_id":             job.OwnerID(),
		"format":               job.Format(),
		"target_platform":      job.TargetPlatform(),
		"target_playlist_id":   job.TargetPlaylistID(),
		"status":               job.Status(),
		"total_songs":          job.TotalSongs(),
		"processed_songs":      job.ProcessedSongs(),
		"matched_songs":        job.MatchedSongs(),
		"unmatched_songs":      job.UnmatchedSongs(),
		"pending_review_songs": job.PendingReviewSongs(),
		"match_results":        job.MatchResults(),
		"warnings":             job.Warnings(),
		"error_message":        job.ErrorMessage(),
		"times":                times(job.StartedAt(), job.CompletedAt(), job.CreatedAt(), job.UpdatedAt()),
	}
}

func exportJobBody(job *models.ExportJob) map[string]any {
	return map[string]any{
		"id":                 job.ID(),
		"owner_id":           job.OwnerID(),
		"format":             job.Format(),
		"source_playlist_id": job.SourcePlaylistID(),
		"status":             job.Status(),
		"filename":           job.Filename(),
		"size_bytes":         len(job.ExportedData()),
		"error_message":      job.ErrorMessage(),
		"times":              times(job.StartedAt(), job.CompletedAt(), job.CreatedAt(), job.UpdatedAt()),
	}
}

func downloadJobBody(job *models.DownloadJob) map[string]any {
	return map[string]any{
		"id":                   job.ID(),
		"owner_id":             job.OwnerID(),
		"service":              job.Service(),
		"status":               job.Status(),
		"total_items":          job.TotalItems(),
		"completed_items":      job.CompletedItems(),
		"failed_items":         job.FailedItems(),
		"queue":                job.Queue(),
		"pending_organization": job.PendingOrganization(),
		"error_message":        job.ErrorMessage(),
		"times":                times(job.StartedAt(), job.CompletedAt(), job.CreatedAt(), job.UpdatedAt()),
	}
}
