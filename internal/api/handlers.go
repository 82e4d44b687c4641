package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/kdimtricp/arcwatch/internal/database"
	"github.com/kdimtricp/arcwatch/internal/logging"
	"github.com/kdimtricp/arcwatch/internal/models"
	"github.com/kdimtricp/arcwatch/internal/processing"
	"github.com/kdimtricp/arcwatch/internal/storage"
)

const defaultMaxUploadSize = 1 << 30

var videoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeLookupError maps a repository error to 404 or 500.
func writeLookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	logging.Error().Err(err).Str("resource", what).Msg("Lookup failed")
	writeError(w, http.StatusInternalServerError, "failed to load "+what)
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if app.DB != nil {
		if err := app.DB.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createJobRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (app *App) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "name is required and must be at most 200 characters")
		return
	}

	job := models.NewJob(req.Name)
	if err := app.Jobs.Create(r.Context(), job); err != nil {
		logging.Error().Err(err).Msg("Failed to create job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (app *App) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := app.Jobs.List(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list jobs")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (app *App) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := app.Jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeLookupError(w, err, "job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (app *App) ListJobFilesHandler(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := app.Jobs.Get(r.Context(), jobID); err != nil {
		writeLookupError(w, err, "job")
		return
	}

	files, err := app.Files.ListByJob(r.Context(), jobID)
	if err != nil {
		logging.Error().Err(err).Str("job_id", jobID).Msg("Failed to list files")
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// UploadHandler stores a video for a job, records it as pending and queues
// it for analysis.
func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobID")
	log := logging.With().Str("job_id", jobID).Logger()

	if _, err := app.Jobs.Get(ctx, jobID); err != nil {
		writeLookupError(w, err, "job")
		return
	}

	maxSize := app.MaxUploadSize
	if maxSize <= 0 {
		maxSize = defaultMaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large or malformed form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing form file \"video\"")
		return
	}
	defer file.Close()

	contentType, ok := videoContentType(header.Header.Get("Content-Type"), header.Filename)
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "only video files are accepted")
		return
	}

	stored, err := app.Uploads.SaveUpload(file, storage.FileInfo{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to store upload")
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	f := models.NewFile(jobID, filepath.Base(header.Filename), stored, contentType, header.Size)
	if err := app.Files.Create(ctx, f); err != nil {
		app.Uploads.DeleteFile(stored)
		log.Error().Err(err).Msg("Failed to record upload")
		writeError(w, http.StatusInternalServerError, "failed to save file information")
		return
	}
	log = log.With().Str("file_id", f.ID).Logger()

	if err := app.Jobs.RecomputeProgress(ctx, jobID); err != nil {
		log.Warn().Err(err).Msg("Failed to recompute job progress")
	}

	if err := app.Queue.Enqueue(ctx, f.ID); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue file")
		writeError(w, http.StatusServiceUnavailable, "file stored but could not be queued")
		return
	}

	log.Info().Str("name", f.OriginalName).Int64("size", f.Size).Msg("File uploaded")
	writeJSON(w, http.StatusCreated, f)
}

func videoContentType(declared, filename string) (string, bool) {
	if strings.HasPrefix(declared, "video/") {
		return declared, true
	}
	if ct, ok := videoExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct, true
	}
	return "", false
}

func (app *App) GetFileHandler(w http.ResponseWriter, r *http.Request) {
	f, err := app.Files.Get(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeLookupError(w, err, "file")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (app *App) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if _, err := app.Files.Get(r.Context(), fileID); err != nil {
		writeLookupError(w, err, "file")
		return
	}

	events, err := app.Events.ListByFile(r.Context(), fileID)
	if err != nil {
		logging.Error().Err(err).Str("file_id", fileID).Msg("Failed to list events")
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (app *App) ListSnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if _, err := app.Files.Get(r.Context(), fileID); err != nil {
		writeLookupError(w, err, "file")
		return
	}

	snaps, err := app.Snapshots.ListByFile(r.Context(), fileID)
	if err != nil {
		logging.Error().Err(err).Str("file_id", fileID).Msg("Failed to list snapshots")
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (app *App) SnapshotImageHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := app.Snapshots.Get(r.Context(), chi.URLParam(r, "snapshotID"))
	if err != nil {
		writeLookupError(w, err, "snapshot")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	app.serveStored(w, r, app.Images, snap.ImagePath)
}

func (app *App) StreamVideoHandler(w http.ResponseWriter, r *http.Request) {
	f, err := app.Files.Get(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeLookupError(w, err, "file")
		return
	}

	w.Header().Set("Content-Type", f.ContentType)
	app.serveStored(w, r, app.Uploads, f.StoredName)
}

// serveStored serves a stored file; ServeContent handles Range requests.
func (app *App) serveStored(w http.ResponseWriter, r *http.Request, st storage.Storage, name string) {
	file, err := st.OpenFile(name)
	if err != nil {
		w.Header().Del("Content-Type")
		writeError(w, http.StatusNotFound, "stored file not found")
		return
	}
	defer file.Close()

	var modTime time.Time
	if f, ok := file.(interface{ Stat() (os.FileInfo, error) }); ok {
		stat, err := f.Stat()
		if err != nil {
			http.Error(w, "Error accessing file", http.StatusInternalServerError)
			return
		}
		modTime = stat.ModTime()
	}

	http.ServeContent(w, r, filepath.Base(name), modTime, file)
}

func (app *App) ReanalyzeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fileID := chi.URLParam(r, "fileID")

	if err := app.Reanalyzer.Reanalyze(ctx, fileID); err != nil {
		switch {
		case errors.Is(err, processing.ErrFileBusy):
			writeError(w, http.StatusConflict, "file is being processed")
		default:
			writeLookupError(w, err, "file")
		}
		return
	}

	if err := app.Queue.Enqueue(ctx, fileID); err != nil {
		logging.Error().Err(err).Str("file_id", fileID).Msg("Failed to enqueue file")
		writeError(w, http.StatusServiceUnavailable, "file reset but could not be queued")
		return
	}

	f, err := app.Files.Get(ctx, fileID)
	if err != nil {
		writeLookupError(w, err, "file")
		return
	}
	writeJSON(w, http.StatusAccepted, f)
}
