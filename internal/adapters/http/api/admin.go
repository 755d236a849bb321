package api

import (
	"net/http"
	"time"
)

// AdminHandler runs the batch jobs on demand.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type indexResponse struct {
	Generation uint64    `json:"generation"`
	Size       int       `json:"size"`
	Clusters   int       `json:"clusters"`
	BuiltAt    time.Time `json:"built_at"`
}

// HandleRefresh handles POST /admin/refresh.
func (h *AdminHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_refresh"
	report, err := h.deps.FullRefresh(r.Context())
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleRebuild handles POST /admin/index/rebuild.
func (h *AdminHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_rebuild"
	gen, err := h.deps.RebuildIndex(r.Context())
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{
		Generation: gen.Number,
		Size:       gen.Size,
		Clusters:   gen.Clusters,
		BuiltAt:    gen.BuiltAt,
	})
}
