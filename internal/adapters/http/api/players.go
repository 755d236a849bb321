package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/okian/gameradar/internal/domain/model"
	"github.com/okian/gameradar/internal/domain/scoring"
)

// PlayersHandler serves the ingestion boundary and snapshot reads.
type PlayersHandler struct {
	ingest    PlayerDependencies
	analytics AnalyticsDependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(ingest PlayerDependencies, analytics AnalyticsDependencies) *PlayersHandler {
	return &PlayersHandler{ingest: ingest, analytics: analytics}
}

type acceptedResponse struct {
	Status   string `json:"status"`
	PlayerID string `json:"player_id"`
	Revision uint64 `json:"revision"`
}

// HandlePostPlayer handles POST /players. The write is acknowledged once the
// normalized record is stored; recomputation happens asynchronously.
func (h *PlayersHandler) HandlePostPlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_player"
	var p model.Player
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, fmt.Errorf("decode body: %w", err)))
		return
	}
	if err := validatePlayer(&p); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	stored, err := h.ingest.UpsertPlayer(r.Context(), p)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", PlayerID: stored.ID, Revision: stored.Revision})
}

// HandleGetLatest handles GET /players/{id}/analytics.
func (h *PlayersHandler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_latest"
	snap, err := h.analytics.Latest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleGetSnapshot handles GET /players/{id}/analytics/{date}.
func (h *PlayersHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_snapshot"
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, fmt.Errorf("date must be YYYY-MM-DD: %w", err)))
		return
	}
	snap, err := h.analytics.Snapshot(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// validatePlayer applies the struct rules, then the scoring domain checks.
func validatePlayer(p *model.Player) error {
	if err := getValidator().Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return scoring.Validate(scoring.InputFromPlayer(p))
}

// jsonFieldName reports fields by their wire name.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
