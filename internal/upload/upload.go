// Package upload accepts media files and stores them in object storage.
package upload

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-social/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-social/internal/middleware"
	"github.com/ovaphlow/pitchfork/service-social/pkg/utilities"
)

const (
	formField = "file"
	keyPrefix = "uploads/"
	// multipart framing allowance on top of the file size limit
	formOverhead = 1 << 20
	// parts beyond this are spooled to temp files
	memoryLimit = 10 << 20
)

var allowedExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".mp4": true, ".mov": true, ".avi": true, ".webm": true,
}

var (
	ErrNoFile          = apperr.New(apperr.Validation, "No file uploaded")
	ErrUnsupportedType = apperr.New(apperr.Validation, "Unsupported file type")
	ErrTooLarge        = apperr.New(apperr.Validation, "File too large")
	ErrUploadFailed    = apperr.New(apperr.Internal, "File upload failed")
)

var errNoStorage = errors.New("object storage is not configured")

// Storage writes an object and returns the URL it is served from.
// *storage.S3Store implements it.
type Storage interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

type Handler struct {
	store    Storage
	maxBytes int64
	logger   *zap.SugaredLogger
	memory   int64
	newKey   func(ext string) string
}

// NewHandler serves uploads into store. A nil store keeps the route mounted
// but fails every upload.
func NewHandler(store Storage, maxBytes int64, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		store:    store,
		maxBytes: maxBytes,
		logger:   logger,
		memory:   memoryLimit,
		newKey:   func(ext string) string { return keyPrefix + utilities.NewSnowflakeID() + ext },
	}
}

type Response struct {
	URL string `json:"url"`
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	}
	if err := r.ParseMultipartForm(h.memory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httpx.WriteError(w, r, h.logger, apperr.Because(ErrTooLarge, err))
			return
		}
		httpx.WriteError(w, r, h.logger, apperr.Because(ErrNoFile, err))
		return
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile(formField)
	if err != nil {
		httpx.WriteError(w, r, h.logger, apperr.Because(ErrNoFile, err))
		return
	}
	defer file.Close()

	if h.maxBytes > 0 && header.Size > h.maxBytes {
		httpx.WriteError(w, r, h.logger, ErrTooLarge)
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExt[ext] {
		httpx.WriteError(w, r, h.logger, ErrUnsupportedType)
		return
	}
	if h.store == nil {
		httpx.WriteError(w, r, h.logger, apperr.Because(ErrUploadFailed, errNoStorage))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			contentType = byExt
		}
	}
	key := h.newKey(ext)
	url, err := h.store.Upload(r.Context(), key, contentType, file)
	if err != nil {
		httpx.WriteError(w, r, h.logger, apperr.Because(ErrUploadFailed, err))
		return
	}
	id, _ := middleware.IdentityFrom(r.Context())
	h.logger.Infow("file uploaded", "user_id", id.ID, "key", key, "size", header.Size, "content_type", contentType)
	httpx.WriteJSON(w, http.StatusOK, Response{URL: url})
}

// Register mounts POST /api/upload behind authed.
func (h *Handler) Register(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.Handle("POST /api/upload", authed(http.HandlerFunc(h.Upload)))
}
