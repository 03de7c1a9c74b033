package api

import (
	"net/http"

	"gridline/internal/store"
)

// parseTradeMode maps the ?mode= query parameter to an is_paper filter:
// "paper" and "live" filter, anything else returns all trades.
func parseTradeMode(r *http.Request) *bool {
	switch r.URL.Query().Get("mode") {
	case "paper":
		v := true
		return &v
	case "live":
		v := false
		return &v
	default:
		return nil
	}
}

func emptyIfNil(trades []store.Trade) []store.Trade {
	if trades == nil {
		return []store.Trade{}
	}
	return trades
}

func (s *Server) handleTradesToday(w http.ResponseWriter, r *http.Request) {
	trades, err := s.tradeRepo.GetByDay(r.Context(), store.TradingDayNow(), parseTradeMode(r))
	if err != nil {
		s.log.Error().Err(err).Msg("fetch today's trades")
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(trades))
}

func (s *Server) handleTradesByDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if !validateDate(date) {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	trades, err := s.tradeRepo.GetByDay(r.Context(), date, parseTradeMode(r))
	if err != nil {
		s.log.Error().Err(err).Str("date", date).Msg("fetch trades by day")
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(trades))
}

func (s *Server) handleAllTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100)
	trades, err := s.tradeRepo.GetAll(r.Context(), limit, parseTradeMode(r))
	if err != nil {
		s.log.Error().Err(err).Msg("fetch all trades")
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(trades))
}

func (s *Server) handleTradeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.tradeRepo.GetStats(r.Context(), parseTradeMode(r))
	if err != nil {
		s.log.Error().Err(err).Msg("fetch trade stats")
		writeError(w, http.StatusInternalServerError, "failed to fetch trade stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
