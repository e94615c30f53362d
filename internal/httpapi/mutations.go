package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
	"github.com/jackchouchani/inventoryApp-sub001/internal/service/offlineservice"
)

// EnqueueMutation handles POST /v1/mutations
func (s *Server) EnqueueMutation(w http.ResponseWriter, r *http.Request) {
	var req offlineservice.MutationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	ev, err := s.Svc.EnqueueMutation(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// ListEvents handles GET /v1/events?status=&entity=&entityId=&cursor=&limit=
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := offlineservice.ListOptions{
		Status:   model.EventStatus(q.Get("status")),
		Entity:   model.Entity(q.Get("entity")),
		EntityID: q.Get("entityId"),
		Cursor:   q.Get("cursor"),
		Limit:    parseLimit(q.Get("limit"), defaultPageSize, maxPageSize),
	}
	if opts.Entity != "" && !opts.Entity.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown entity "+string(opts.Entity))
		return
	}
	if opts.Status != "" && !opts.Status.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown status "+string(opts.Status))
		return
	}

	page, err := s.Svc.ListEvents(r.Context(), opts)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type retryResp struct {
	Requeued int `json:"requeued"`
}

// RetryFailed handles POST /v1/events/{id}/retry and POST /v1/events/retry
// (every failed event)
func (s *Server) RetryFailed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.Svc.RetryFailed(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	log.Ctx(r.Context()).Info().Str("event_id", id).Int("requeued", n).Msg("failed events requeued")
	writeJSON(w, http.StatusOK, retryResp{Requeued: n})
}

// EntityStatus handles GET /v1/entities/{entity}/{id}/status
func (s *Server) EntityStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Svc.EntityStatus(r.Context(), model.Entity(chi.URLParam(r, "entity")), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SyncNow handles POST /v1/sync and runs one pass synchronously
func (s *Server) SyncNow(w http.ResponseWriter, r *http.Request) {
	res, err := s.Svc.SyncNow(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExportQueue handles GET /v1/queue/export
func (s *Server) ExportQueue(w http.ResponseWriter, r *http.Request) {
	blob, err := s.Svc.ExportQueue(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="stocksync-queue.bin"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

// ImportQueue handles POST /v1/queue/import with an export blob as body
func (s *Server) ImportQueue(w http.ResponseWriter, r *http.Request) {
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<20))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	rep, err := s.Svc.ImportQueue(r.Context(), blob)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
