package api

import (
	"net/http"

	"gridline/internal/store"
)

func (s *Server) handleSRLatest(w http.ResponseWriter, r *http.Request) {
	rec, err := s.srRepo.GetLatest(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("fetch latest S/R observation")
		writeError(w, http.StatusInternalServerError, "failed to fetch support/resistance")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no support/resistance data available")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSRHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)
	recs, err := s.srRepo.GetHistory(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("fetch S/R history")
		writeError(w, http.StatusInternalServerError, "failed to fetch support/resistance history")
		return
	}
	if recs == nil {
		recs = []store.SRRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
