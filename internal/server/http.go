package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/remote"
)

// maxRequestBytes bounds a request body
const maxRequestBytes = 32 << 20

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"definitions": s.Definitions()})
}

// handleDescribeEndpoint serves GET on a definition endpoint
func (s *Server) handleDescribeEndpoint(w http.ResponseWriter, r *http.Request) {
	s.describe(w, r, r.PathValue("name"))
}

// handleIO serves a compute-style describe, addressed by pointer
func (s *Server) handleIO(w http.ResponseWriter, r *http.Request) {
	var request remote.IORequest
	if err := decodeBody(w, r, &request); err != nil {
		writeError(w, err)
		return
	}
	s.describe(w, r, request.Pointer)
}

func (s *Server) describe(w http.ResponseWriter, r *http.Request, pointer string) {
	start := time.Now()
	response, err := s.Describe(pointer)
	core.LogRequest(r.Method+" "+r.URL.Path, time.Since(start).Seconds(), err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// handleSolveEndpoint serves POST on a definition endpoint. The payload's
// pointer is the endpoint URL, so the path decides the definition.
func (s *Server) handleSolveEndpoint(w http.ResponseWriter, r *http.Request) {
	var input remote.Schema
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, err)
		return
	}
	input.Pointer = r.PathValue("name")
	s.solve(w, r, &input)
}

// handleSolve serves a compute-style solve, addressed by the payload's pointer
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var input remote.Schema
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, err)
		return
	}
	s.solve(w, r, &input)
}

func (s *Server) solve(w http.ResponseWriter, r *http.Request, input *remote.Schema) {
	defer func() {
		if rec := recover(); rec != nil {
			core.LogPanicRecovery("solve handler", rec)
			http.Error(w, fmt.Sprintf("internal error: %v", rec), http.StatusInternalServerError)
		}
	}()

	start := time.Now()
	output, err := s.Solve(r.Context(), input)
	core.LogRequest(r.Method+" "+r.URL.Path, time.Since(start).Seconds(), err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, output)
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(out); err != nil {
		return NewBadRequestError(fmt.Errorf("invalid JSON body: %w", err))
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var badRequest *BadRequestError
	switch {
	case errors.Is(err, remote.ErrDefinitionNotFound):
		status = http.StatusNotFound
	case errors.As(err, &badRequest):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("Failed to write response", zap.Error(err))
	}
}
