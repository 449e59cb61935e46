package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/firstserv/chat-platform/internal/middleware"
	"github.com/firstserv/chat-platform/internal/service"
	"github.com/firstserv/chat-platform/pkg/logger"
)

// UploadHandler stores avatar and media files on local disk and serves
// their URLs. Thin wrapper: the core only carries the resulting references.
type UploadHandler struct {
	users   *service.UserService
	dir     string
	baseURL string
	maxSize int64
	logger  *logger.Logger
}

// NewUploadHandler creates an upload handler rooted at dir.
func NewUploadHandler(users *service.UserService, dir, baseURL string, maxSize int64, log *logger.Logger) (*UploadHandler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &UploadHandler{
		users:   users,
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
		logger:  log,
	}, nil
}

// Avatar handles POST /api/v1/upload/avatar. Image files only; the stored
// URL replaces the caller's avatar reference.
func (h *UploadHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	handle := middleware.GetUserHandle(r.Context())

	url, err := h.save(w, r, handle, func(contentType string) error {
		if !strings.HasPrefix(contentType, "image/") {
			return errors.New("only image files are allowed")
		}
		return nil
	})
	if err != nil {
		return // save already wrote the error
	}

	if _, err := h.users.UpdateAvatar(r.Context(), handle, url); err != nil {
		writeDomainError(w, err, "failed to update avatar")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"avatar_url": url})
}

// Media handles POST /api/v1/upload/media. The returned URL is usable as a
// message media reference.
func (h *UploadHandler) Media(w http.ResponseWriter, r *http.Request) {
	handle := middleware.GetUserHandle(r.Context())

	url, err := h.save(w, r, handle, nil)
	if err != nil {
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"media_url": url})
}

// save reads the multipart "file" part onto disk and returns its public
// URL. The accept check runs against the declared content type before
// anything is written, so a rejected upload leaves no file behind. On
// failure save writes the HTTP error itself.
func (h *UploadHandler) save(w http.ResponseWriter, r *http.Request, handle string, accept func(contentType string) error) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file exceeds size limit or is missing")
		return "", err
	}
	defer file.Close()

	if accept != nil {
		if err := accept(header.Header.Get("Content-Type")); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return "", err
		}
	}

	name := fmt.Sprintf("%s_%s_%s",
		sanitize(handle),
		time.Now().UTC().Format("20060102150405"),
		sanitize(filepath.Base(header.Filename)),
	)

	dst, err := os.Create(filepath.Join(h.dir, name))
	if err != nil {
		h.logger.Error("failed to create upload file", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		h.logger.Error("failed to write upload file", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return "", err
	}

	return h.baseURL + "/" + name, nil
}

// sanitize keeps path separators and oddities out of stored filenames.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
