package handlers

import (
	"errors"
	"net/http"

	"github.com/nikhilbhutani/docpipeline/internal/document"
	"github.com/nikhilbhutani/docpipeline/internal/queue"
	"github.com/nikhilbhutani/docpipeline/internal/search"
	"github.com/nikhilbhutani/docpipeline/internal/storage"
)

// MapHTTPStatus translates pipeline errors into response codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrInvalidFile),
		errors.Is(err, document.ErrInvalidDocument),
		errors.Is(err, search.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, document.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, queue.ErrPublish),
		errors.Is(err, queue.ErrQueueUnavailable),
		errors.Is(err, search.ErrNotReady),
		errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, search.ErrIndexFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := MapHTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
