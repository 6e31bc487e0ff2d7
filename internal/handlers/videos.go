package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"clipflow/internal/database"
	"clipflow/internal/logging"
	"clipflow/internal/mediatypes"
	"clipflow/internal/notify"
	"clipflow/internal/streamer"
)

// uploadFieldName is the multipart form field carrying the file.
const uploadFieldName = "video"

type videoResponse struct {
	Success bool            `json:"success"`
	Video   *database.Video `json:"video"`
}

type listResponse struct {
	Success bool `json:"success"`
	*database.ListResult
}

// Upload accepts a multipart video upload, stores the file, creates the
// record, and kicks off the processing pipeline. The response returns as
// soon as the record exists; transcoding happens in the background.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if !canUpload(user) {
		respondError(w, http.StatusForbidden, "your role does not allow uploads")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if tooLarge(err) {
			respondError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing video file field")
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("handlers: close upload part: %v", err)
		}
	}()

	mimeType := header.Header.Get("Content-Type")
	if !mediatypes.UploadMimeTypes[mimeType] {
		respondError(w, http.StatusUnsupportedMediaType, "unsupported media type")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !mediatypes.VideoExtensions[ext] {
		ext = ".mp4"
	}
	storedFilename := uuid.NewString() + ext
	destPath := filepath.Join(h.cfg.UploadDir, storedFilename)

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		logging.Error("handlers: create upload file: %v", err)
		respondError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	size, err := io.Copy(dest, file)
	closeErr := dest.Close()
	if err != nil || closeErr != nil {
		removeQuiet(destPath)
		if tooLarge(err) {
			respondError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			return
		}
		logging.Error("handlers: write upload: copy=%v close=%v", err, closeErr)
		respondError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	video := &database.Video{
		Owner:            user.ID,
		StoredFilename:   storedFilename,
		OriginalFilename: header.Filename,
		SizeBytes:        size,
		SourcePath:       destPath,
		MimeType:         mimeType,
	}
	if err := h.db.CreateVideo(r.Context(), video); err != nil {
		removeQuiet(destPath)
		logging.Error("handlers: create video record: %v", err)
		respondError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	h.hub.Publish(user.ID, notify.EventUploaded, notify.UploadedPayload{VideoID: video.ID})
	h.pipeline.Start(video.ID, user.ID)

	logging.Info("handlers: accepted upload %s (%s, %d bytes) from %s",
		video.ID, video.OriginalFilename, size, user.Email)
	respondJSON(w, http.StatusCreated, videoResponse{Success: true, Video: video})
}

// List returns the caller's videos, newest first, with optional status,
// sensitivity, and filename filters.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	query := r.URL.Query()

	opts := database.ListOptions{
		Owner:  user.ID,
		Search: strings.TrimSpace(query.Get("q")),
	}
	opts.Page, _ = strconv.Atoi(query.Get("page"))
	opts.Limit, _ = strconv.Atoi(query.Get("limit"))

	if raw := query.Get("status"); raw != "" {
		status, ok := database.ParseStatus(raw)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		opts.Status = status
	}
	if raw := query.Get("sensitivity"); raw != "" {
		sensitivity, ok := database.ParseSensitivity(raw)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown sensitivity filter")
			return
		}
		opts.Sensitivity = sensitivity
	}

	result, err := h.db.ListVideos(r.Context(), opts)
	if err != nil {
		logging.Error("handlers: list videos: %v", err)
		respondError(w, http.StatusInternalServerError, "could not list videos")
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Success: true, ListResult: result})
}

// Get returns one video record.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}
	if !canTouchVideo(CurrentUser(r), video) {
		respondError(w, http.StatusForbidden, "you do not have access to this video")
		return
	}
	respondJSON(w, http.StatusOK, videoResponse{Success: true, Video: video})
}

// Stream serves the video bytes with range support. The q query
// parameter selects a rendition (quality is accepted as an alias);
// missing renditions fall back to the original file.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}
	if !canTouchVideo(CurrentUser(r), video) {
		respondError(w, http.StatusForbidden, "you do not have access to this video")
		return
	}

	raw := r.URL.Query().Get("q")
	if raw == "" {
		raw = r.URL.Query().Get("quality")
	}
	quality := mediatypes.ParseQuality(raw)
	if err := h.streamer.ServeVideo(w, r, video, quality); err != nil {
		if errors.Is(err, streamer.ErrFileMissing) {
			respondError(w, http.StatusNotFound, "video file not found")
			return
		}
		logging.Error("handlers: stream %s: %v", video.ID, err)
		respondError(w, http.StatusInternalServerError, "could not stream video")
	}
}

// Delete removes a video's files and record. Videos still being
// processed cannot be deleted; the pipeline owns their files until it
// reaches a terminal state.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	video, ok := h.loadVideo(w, r)
	if !ok {
		return
	}
	user := CurrentUser(r)
	if !canDeleteVideo(user, video) {
		respondError(w, http.StatusForbidden, "you do not have access to this video")
		return
	}
	if h.pipeline.IsActive(video.ID) {
		respondError(w, http.StatusConflict, "video is still processing")
		return
	}

	// Files go first. If the record delete then fails the worst case is
	// a record pointing at missing files, which streaming reports as
	// 404, rather than orphaned files nothing references.
	removeQuiet(video.SourcePath)
	for _, path := range video.Variants {
		removeQuiet(path)
	}
	if video.ThumbPath != "" {
		removeQuiet(video.ThumbPath)
	}
	h.streamer.Invalidate(video.ID)

	if err := h.db.DeleteVideo(r.Context(), video.ID); err != nil {
		logging.Error("handlers: delete video %s: %v", video.ID, err)
		respondError(w, http.StatusInternalServerError, "could not delete video")
		return
	}

	logging.Info("handlers: video %s deleted by %s", video.ID, user.Email)
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Websocket upgrades the connection for push notifications. The client
// joins its own room by sending a join message after connecting.
func (h *Handlers) Websocket(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if _, err := h.hub.Upgrade(w, r, user.ID); err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Warn("handlers: websocket upgrade for %s: %v", user.Email, err)
	}
}

// loadVideo fetches the video named in the route, answering 404 itself
// when it does not exist.
func (h *Handlers) loadVideo(w http.ResponseWriter, r *http.Request) (*database.Video, bool) {
	id := mux.Vars(r)["id"]
	video, err := h.db.GetVideo(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "video not found")
			return nil, false
		}
		logging.Error("handlers: load video %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "could not load video")
		return nil, false
	}
	return video, true
}

func tooLarge(err error) bool {
	var maxBytes *http.MaxBytesError
	return errors.As(err, &maxBytes)
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn("handlers: remove %s: %v", path, err)
	}
}
