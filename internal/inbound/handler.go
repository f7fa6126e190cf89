package inbound

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Error codes for message operations
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeMessageNotFound = "MESSAGE_NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// Handler handles HTTP requests for the admin message endpoints
type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// ListMessages handles GET /api/admin/mails
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	opts := ListOptions{Page: defaultPage, Limit: defaultLimit}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "page must be an integer", nil)
			return
		}
		opts.Page = page
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "limit must be an integer", nil)
			return
		}
		opts.Limit = limit
	}

	opts.Search = r.URL.Query().Get("search")
	opts.IncludeArchived = r.URL.Query().Get("include_archived") == "true"

	if err := h.validate.Struct(&opts); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid list parameters", validationDetails(err))
		return
	}

	summaries, totalCount, err := h.service.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("Failed to list messages", "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to list messages", nil)
		return
	}

	messages := make([]MessageSummaryResponse, 0, len(summaries))
	for i := range summaries {
		messages = append(messages, ToMessageSummaryResponse(&summaries[i]))
	}

	response := ListMessagesResponse{
		Messages: messages,
		Pagination: PaginationInfo{
			CurrentPage: opts.Page,
			PerPage:     opts.Limit,
			TotalPages:  CalculateTotalPages(totalCount, opts.Limit),
			TotalCount:  totalCount,
		},
	}

	h.writeSuccess(w, http.StatusOK, response)
}

// GetMessage handles GET /api/admin/mails/:id
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid message ID", nil)
		return
	}

	msg, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, ToMessageResponse(msg))
}

// ArchiveMessage handles POST /api/admin/mails/:id/archive
func (h *Handler) ArchiveMessage(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// UnarchiveMessage handles POST /api/admin/mails/:id/unarchive
func (h *Handler) UnarchiveMessage(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *Handler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid message ID", nil)
		return
	}

	if err := h.service.SetArchived(r.Context(), id, archived); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, ArchiveMessageResponse{ID: id, Archived: archived})
}

// DeleteMessage handles DELETE /api/admin/mails/:id
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid message ID", nil)
		return
	}

	result, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, DeleteMessageResponse{
		ID:                 result.ID,
		AttachmentsRemoved: result.AttachmentsRemoved,
	})
}

// handleServiceError maps service errors to HTTP responses
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMessageNotFound):
		h.writeError(w, http.StatusNotFound, CodeMessageNotFound, "Message not found", nil)
	default:
		h.logger.Error("Unexpected message error", "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred", nil)
	}
}

// validationDetails flattens validator errors into per-field messages
func validationDetails(err error) map[string][]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = append(details[fe.Field()], fe.Tag())
	}
	return details
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}
