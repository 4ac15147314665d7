package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/saferoute/internal/engine"
	"github.com/lazypower/saferoute/internal/ratings"
)

type ratingRequest struct {
	User      string   `json:"user"`
	Score     *float64 `json:"score"`
	Timestamp string   `json:"timestamp"`
}

type reportResponse struct {
	At       time.Time          `json:"at"`
	Applied  int                `json:"applied"`
	Scores   map[string]float64 `json:"scores"`
	Warnings []string           `json:"warnings"`
}

func toReportResponse(rep engine.Report) reportResponse {
	out := reportResponse{
		At:       rep.At,
		Applied:  rep.Applied,
		Scores:   rep.Scores,
		Warnings: make([]string, 0, len(rep.Warnings)),
	}
	if out.Scores == nil {
		out.Scores = map[string]float64{}
	}
	for _, w := range rep.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	return out
}

func toRecords(rs []ratings.Rating) []ratings.Record {
	out := make([]ratings.Record, 0, len(rs))
	for _, r := range rs {
		out = append(out, ratings.ToRecord(r))
	}
	return out
}

func (s *Server) handleSaveRating(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")

	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Score == nil {
		writeError(w, http.StatusBadRequest, "score required")
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := ratings.ParseTime(req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ts = parsed
	}

	rating, err := ratings.New(req.User, *req.Score, ts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h, err := s.engine.Store.SaveRating(nodeID, rating.Score, rating.User, rating.Timestamp)
	if err != nil {
		s.log.WithError(err).WithField("node", nodeID).Error("save rating failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"node_id": nodeID,
		"ratings": toRecords(h[nodeID]),
	})
}

func (s *Server) handleNodeRatings(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")

	h, _, err := s.engine.Store.LoadRatings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rs, ok := h[nodeID]
	if !ok {
		writeError(w, http.StatusNotFound, "no ratings for node "+nodeID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"node_id": nodeID,
		"ratings": toRecords(rs),
	})
}

func (s *Server) handleNodeScore(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")

	score, rs, err := s.engine.NodeScore(nodeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":    nodeID,
		"score":      score,
		"ratings":    len(rs),
		"decay_days": s.engine.DecayDays,
	})
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.engine.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no recompute has run yet")
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(rep))
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.Recompute()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(rep))
}
