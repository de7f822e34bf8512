package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/soochol/connreg/internal/connreg"
	"github.com/soochol/connreg/internal/repository"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps registry and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var invalid *connreg.InvalidArgumentError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Msg)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicateName):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("connection store failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
