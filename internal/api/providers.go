package api

import (
	"encoding/json"
	"net/http"

	"github.com/MrWong99/privanote/internal/registry"
	"github.com/MrWong99/privanote/pkg/types"
)

type providersResponse struct {
	Selected  types.ProviderID      `json:"selected"`
	Providers []registry.Descriptor `json:"providers"`
}

// handleProviders probes the local backends and lists every backend.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{
		Selected:  s.app.Provider(),
		Providers: s.app.Registry().ListAvailable(r.Context()),
	})
}

type selectRequest struct {
	Provider string `json:"provider"`
}

func (s *Server) handleSelectProvider(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Provider == "" {
		badRequest(w, "provider is required")
		return
	}
	id, err := types.ParseProviderID(req.Provider)
	if err == nil {
		err = s.app.SetProvider(id)
	}
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, selectRequest{Provider: string(id)})
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	id := types.ProviderID(r.PathValue("id"))
	if !id.Valid() {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown provider " + string(id)})
		return
	}
	writeJSON(w, http.StatusOK, s.app.Registry().Probe(r.Context(), id))
}

func (s *Server) handleTranscriber(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Transcriber().ModelInfo())
}

type modelRequest struct {
	Size string `json:"size"`
}

// handleSetModel loads another model size. The previous model stays active
// when loading fails.
func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	tr := s.app.Transcriber()
	if err := tr.SetModelSize(r.Context(), req.Size); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr.ModelInfo())
}
