package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/connreg/internal/connreg"
)

func (s *Server) createConnection(w http.ResponseWriter, r *http.Request) {
	var opts *connreg.ConnectionOptions
	if err := decodeBody(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	start := time.Now()
	conn, err := s.connectionSvc.Create(r.Context(), opts)
	s.observe("create", start, err)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	conns, err := s.connectionSvc.List(r.Context())
	s.observe("list", start, err)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if conns == nil {
		conns = []*connreg.Connection{}
	}
	writeJSON(w, http.StatusOK, conns)
}

func (s *Server) defaultConnections(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, s.connectionSvc.DefaultConnections())
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	start := time.Now()
	conn, err := s.connectionSvc.FindByID(r.Context(), id)
	s.observe("find", start, err)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) updateConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Keys other than name, host and port are dropped by the decoder.
	var req *connreg.UpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	start := time.Now()
	conn, err := s.connectionSvc.Update(r.Context(), id, req)
	s.observe("update", start, err)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	start := time.Now()
	err := s.connectionSvc.Delete(r.Context(), id)
	s.observe("delete", start, err)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) observe(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Observe(op, start, err)
	}
}

// decodeBody decodes JSON into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
