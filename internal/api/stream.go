package api

import (
	"encoding/json"
	"net/http"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/command"
	"github.com/chatvault/chatvault/internal/sse"
)

// handleExport starts an export run and streams its progress events.
// A disconnecting client does not stop the run; the stream is simply drained.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req command.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	_, events, err := s.deps.Commands.StartExport(req)
	if err != nil {
		writeKindError(w, err)
		return
	}

	s.stream(w, events)
}

// handleSync starts a metadata sync run and streams its progress events.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	_, events, err := s.deps.Commands.StartSync()
	if err != nil {
		writeKindError(w, err)
		return
	}

	s.stream(w, events)
}

// handleImport starts an import run and streams its progress events.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req command.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	_, events, err := s.deps.Commands.StartImport(req)
	if err != nil {
		writeKindError(w, err)
		return
	}

	s.stream(w, events)
}

// stream frames run events onto the response until the run's channel closes.
// Write failures mean the client went away; the channel is drained anyway so
// the run is never blocked.
func (s *Server) stream(w http.ResponseWriter, events <-chan command.Event) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", err)
		return
	}

	for ev := range events {
		var payload any
		if ev.Command != nil {
			payload = ev.Command
		} else {
			payload = map[string]string{"message": ev.Message}
		}
		if err := writer.Send(sse.EventType(ev.Type), payload); err != nil {
			for range events {
			}
			return
		}
	}
}

func writeKindError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindConcurrency:
		status = http.StatusConflict
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

func writeError(w http.ResponseWriter, status int, message string, cause error) {
	resp := ErrorResponse{Error: message}
	if cause != nil {
		resp.Details = cause.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
