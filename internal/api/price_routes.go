package api

import (
	"net/http"

	"gridline/internal/store"
)

// priceJSON is the compact charting payload: float precision is enough
// for display and keeps the response small.
type priceJSON struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}

func toPriceJSON(prices []store.PricePoint) []priceJSON {
	out := make([]priceJSON, len(prices))
	for i, p := range prices {
		out[i] = priceJSON{T: p.Timestamp.UnixMilli(), P: p.Price.InexactFloat64()}
	}
	return out
}

func (s *Server) handlePricesToday(w http.ResponseWriter, r *http.Request) {
	today := store.TradingDayNow()
	prices, err := s.priceRepo.GetByDay(r.Context(), today)
	if err != nil {
		s.log.Error().Err(err).Msg("fetch today's prices")
		writeError(w, http.StatusInternalServerError, "failed to fetch prices")
		return
	}
	writeJSON(w, http.StatusOK, toPriceJSON(prices))
}

func (s *Server) handlePricesByDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if !validateDate(date) {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	prices, err := s.priceRepo.GetByDay(r.Context(), date)
	if err != nil {
		s.log.Error().Err(err).Str("date", date).Msg("fetch prices by day")
		writeError(w, http.StatusInternalServerError, "failed to fetch prices")
		return
	}
	writeJSON(w, http.StatusOK, toPriceJSON(prices))
}

func (s *Server) handleAvailableDays(w http.ResponseWriter, r *http.Request) {
	days, err := s.priceRepo.GetAvailableDays(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("fetch available days")
		writeError(w, http.StatusInternalServerError, "failed to fetch available days")
		return
	}
	if days == nil {
		days = []string{}
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) handleLatestPrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.priceRepo.GetLatest(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("fetch latest price")
		writeError(w, http.StatusInternalServerError, "failed to fetch latest price")
		return
	}
	if price == nil {
		writeError(w, http.StatusNotFound, "no price data available")
		return
	}
	writeJSON(w, http.StatusOK, priceJSON{T: price.Timestamp.UnixMilli(), P: price.Price.InexactFloat64()})
}
