package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type gridResponse struct {
	BasePrice      decimal.Decimal  `json:"basePrice"`
	LastPrice      *decimal.Decimal `json:"lastPrice"`
	Ladder         json.RawMessage  `json:"ladder"`
	TradesExecuted int              `json:"tradesExecuted"`
	LastSRRefresh  *time.Time       `json:"lastSrRefresh"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

func (s *Server) handleGridCurrent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.stateRepo.GetActive(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("fetch active ladder state")
		writeError(w, http.StatusInternalServerError, "failed to fetch grid state")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no active grid")
		return
	}

	writeJSON(w, http.StatusOK, gridResponse{
		BasePrice:      rec.BasePrice,
		LastPrice:      rec.LastPrice,
		Ladder:         rec.LadderJSON,
		TradesExecuted: rec.TradesExecuted,
		LastSRRefresh:  rec.LastSRRefresh,
		UpdatedAt:      rec.UpdatedAt,
	})
}
