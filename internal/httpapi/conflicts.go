package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jackchouchani/inventoryApp-sub001/internal/auth"
	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/service/offlineservice"
)

type conflictsResp struct {
	Conflicts []offlineservice.ConflictView `json:"conflicts"`
}

// resolveReq is the body of POST /v1/conflicts/{id}/resolve
type resolveReq struct {
	Resolution   model.Resolution `json:"resolution"`
	ResolvedData map[string]any   `json:"resolvedData,omitempty"`
	ResolvedBy   string           `json:"resolvedBy,omitempty"` // defaults to the token subject
}

type resolveResp struct {
	Conflict  *model.ConflictRecord `json:"conflict"`
	WriteBack *model.OfflineEvent   `json:"writeBack,omitempty"`
}

// ListConflicts handles GET /v1/conflicts
func (s *Server) ListConflicts(w http.ResponseWriter, r *http.Request) {
	cs, err := s.Svc.GetUnresolvedConflicts(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conflictsResp{Conflicts: cs})
}

// GetConflict handles GET /v1/conflicts/{id}
func (s *Server) GetConflict(w http.ResponseWriter, r *http.Request) {
	c, err := s.Svc.GetConflict(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ResolveConflict handles POST /v1/conflicts/{id}/resolve.
// 400 on an unknown resolution or missing data, 404 on an unknown
// conflict, 409 when it was already resolved.
func (s *Server) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	by := req.ResolvedBy
	if by == "" {
		by = auth.Subject(r.Context())
	}
	if by == "" {
		by = "user"
	}

	out, err := s.Svc.ResolveConflict(r.Context(), chi.URLParam(r, "id"), req.Resolution, req.ResolvedData, by)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResp{Conflict: out.Conflict, WriteBack: out.WriteBack})
}
