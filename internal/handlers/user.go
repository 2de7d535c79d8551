package handlers

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/types"
)

const (
	userNotFound   = "user not found"
	maxAvatarBytes = 5 << 20
)

// UserHandler provides HTTP handlers for user administration and profiles.
type UserHandler struct {
	userService *services.UserService
	logger      *slog.Logger
}

// NewUserHandler constructs a handler with the provided service.
func NewUserHandler(userService *services.UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{userService: userService, logger: logger}
}

// UserRouter registers /user routes. Callers mount it behind RequireAuth.
func UserRouter(r chi.Router, handler *UserHandler) {
	adminOnly := RequireRole(handler.logger, types.RoleAdmin)

	r.With(adminOnly).Get("/", handler.ListUsers)
	r.Route("/{userId}", func(r chi.Router) {
		r.With(handler.requireSelfOrAdmin).Get("/", handler.GetUser)
		r.With(handler.requireSelfOrAdmin).Put("/", handler.UpdateUser)
		r.With(adminOnly).Delete("/", handler.DeleteUser)
		r.With(handler.requireSelfOrAdmin).Put("/avatar", handler.UploadAvatar)
		r.Get("/avatar", handler.GetAvatar)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, userNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, "users retrieved", users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetByID(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, h.logger, err, userNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, "user retrieved", user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateUserInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.userService.Update(r.Context(), chi.URLParam(r, "userId"), req)
	if err != nil {
		writeServiceError(w, h.logger, err, userNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, "user updated", updated)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.userService.Delete(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, h.logger, err, userNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, "user deleted", deleted)
}

// UploadAvatar stores the raw request body as the user's avatar.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	data, err := readFileLimited(r.Body, maxAvatarBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "avatar body is empty")
		return
	}

	contentType := avatarContentType(r.Header.Get("Content-Type"), data)
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "avatar must be an image")
		return
	}

	userID := chi.URLParam(r, "userId")
	if err := h.userService.SetAvatar(r.Context(), userID, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeServiceError(w, h.logger, err, userNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, "avatar uploaded", nil)
}

// GetAvatar streams the stored avatar.
func (h *UserHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	rc, err := h.userService.Avatar(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, h.logger, err, "avatar not found")
		return
	}
	defer rc.Close()

	var head [512]byte
	n, err := io.ReadFull(rc, head[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeServiceError(w, h.logger, err, "avatar not found")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(head[:n]))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(head[:n])
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("avatar stream interrupted", "error", err)
	}
}

func (h *UserHandler) requireSelfOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := identityFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if !types.IsAdmin(identity.Role) && !strings.EqualFold(identity.UserID, chi.URLParam(r, "userId")) {
			writeError(w, http.StatusForbidden, "access denied: insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func avatarContentType(header string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
