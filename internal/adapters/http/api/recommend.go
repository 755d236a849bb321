package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/gameradar/internal/recommend"
)

// RecommendHandler serves similarity recommendations.
type RecommendHandler struct {
	deps RecommendDependencies
}

// NewRecommendHandler creates a new recommendation handler.
func NewRecommendHandler(deps RecommendDependencies) *RecommendHandler {
	return &RecommendHandler{deps: deps}
}

// HandleGetRecommendations handles
// GET /recommendations/{id}?limit=&region=&game=&min_activity=&threshold=.
// region may repeat or hold a comma-separated list.
func (h *RecommendHandler) HandleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_recommendations"
	req, err := parseRecommendRequest(chi.URLParam(r, "id"), r.URL.Query())
	if err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	resp, err := h.deps.Recommend(r.Context(), req)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseRecommendRequest(id string, q url.Values) (recommend.Request, error) {
	req := recommend.Request{SourceID: id, Game: strings.TrimSpace(q.Get("game"))}
	var err error
	if req.Limit, err = intParam(q, "limit"); err != nil {
		return req, err
	}
	if req.MinActivity, err = intParam(q, "min_activity"); err != nil {
		return req, err
	}
	if s := q.Get("threshold"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return req, fmt.Errorf("threshold must be a number, got %q", s)
		}
		req.SimilarityThreshold = &v
	}
	for _, raw := range q["region"] {
		for _, region := range strings.Split(raw, ",") {
			if region = strings.TrimSpace(region); region != "" {
				req.Regions = append(req.Regions, region)
			}
		}
	}
	return req, nil
}

func intParam(q url.Values, name string) (int, error) {
	s := q.Get(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, s)
	}
	return v, nil
}
