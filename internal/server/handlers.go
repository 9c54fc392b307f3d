package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"maestro/internal/api"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req api.CreateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, api.NewValidationError("body", "invalid request body: "+err.Error()))
		return
	}

	inst, err := s.service.Create(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, inst)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.service.List(r.Context()))
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStartInstance accepts an optional configuration override in the
// request body. An empty body starts the instance with its stored
// declared configuration.
func (s *Server) handleStartInstance(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, api.NewValidationError("body", "reading request body: "+err.Error()))
		return
	}

	var override *api.DeclaredConfiguration
	if len(body) > 0 {
		override = &api.DeclaredConfiguration{}
		if err := json.Unmarshal(body, override); err != nil {
			respondError(w, api.NewValidationError("body", "invalid configuration override: "+err.Error()))
			return
		}
	}

	info, err := s.service.StartInstance(r.Context(), chi.URLParam(r, "id"), override)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleStopInstance(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.StopInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleRestartInstance(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.RestartInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.GetConfiguration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePatchConfiguration(w http.ResponseWriter, r *http.Request) {
	patch, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, api.NewValidationError("body", "reading request body: "+err.Error()))
		return
	}

	cfg, err := s.service.PatchConfiguration(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGetRuntime(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.GetRuntime(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleStatusUpdate(w http.ResponseWriter, r *http.Request) {
	var update api.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, api.NewValidationError("body", "invalid status update: "+err.Error()))
		return
	}

	if err := s.service.ReceiveStatusUpdate(r.Context(), update); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStatusChanges(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, api.NewValidationError("since", "not an RFC 3339 timestamp: "+raw))
			return
		}
		since = parsed
	}

	statusFilter := api.InstanceStatus(r.URL.Query().Get("status"))

	records, err := s.service.GetRecentChanges(r.Context(), since, statusFilter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}
