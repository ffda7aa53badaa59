package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/service"
)

// MarketHandler exposes the betting-market operations over HTTP.
type MarketHandler struct {
	betting     *service.BettingService
	resolutions *service.ResolutionService
	logger      *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(betting *service.BettingService, resolutions *service.ResolutionService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{betting: betting, resolutions: resolutions, logger: logger}
}

// Initialize handles POST /api/markets.
func (h *MarketHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Caller         domain.ID         `json:"caller"`
		Stream         domain.ID         `json:"stream"`
		Mint           domain.ID         `json:"mint"`
		Type           domain.MarketType `json:"type"`
		Outcomes       []string          `json:"outcomes"`
		ResolutionTime int64             `json:"resolution_time"`
		Liquidity      int64             `json:"liquidity"`
		FeeBps         uint16            `json:"fee_bps"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	market, err := h.betting.InitializeMarket(r.Context(), time.Now(), domain.InitializeMarketParams{
		Caller:         p.Caller,
		Stream:         p.Stream,
		Mint:           p.Mint,
		Type:           p.Type,
		Outcomes:       p.Outcomes,
		ResolutionTime: p.ResolutionTime,
		Liquidity:      p.Liquidity,
		FeeBps:         p.FeeBps,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

// PlaceBet handles POST /api/markets/{id}/bets.
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var p struct {
		Caller    domain.ID `json:"caller"`
		Mint      domain.ID `json:"mint"`
		OutcomeID uint8     `json:"outcome_id"`
		Amount    int64     `json:"amount"`
		MinShares int64     `json:"min_shares"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	shares, err := h.betting.PlaceBet(r.Context(), time.Now(), domain.PlaceBetParams{
		Caller:    p.Caller,
		Market:    id,
		Mint:      p.Mint,
		OutcomeID: p.OutcomeID,
		Amount:    p.Amount,
		MinShares: p.MinShares,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"shares": shares})
}

// Resolve handles POST /api/markets/{id}/resolve.
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var p struct {
		Caller         domain.ID `json:"caller"`
		WinningOutcome uint8     `json:"winning_outcome"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	finish(w, h.betting.ResolveMarket(r.Context(), time.Now(), domain.ResolveMarketParams{
		Caller:         p.Caller,
		Market:         id,
		WinningOutcome: p.WinningOutcome,
	}))
}

// Claim handles POST /api/markets/{id}/claim.
func (h *MarketHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var p struct {
		Caller domain.ID `json:"caller"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	payout, err := h.betting.ClaimWinnings(r.Context(), time.Now(), domain.ClaimWinningsParams{
		Caller: p.Caller,
		Market: id,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"payout": payout})
}

// RequestRandomness handles POST /api/markets/{id}/randomness.
func (h *MarketHandler) RequestRandomness(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var p struct {
		Caller             domain.ID                  `json:"caller"`
		UseCase            domain.RandomnessUseCase   `json:"use_case"`
		ClientSeed         domain.Seed                `json:"client_seed"`
		EligibleValidators []domain.EligibleValidator `json:"eligible_validators"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	requestID, err := h.resolutions.RequestRandomness(r.Context(), time.Now(), domain.RequestRandomnessParams{
		Caller:             p.Caller,
		Market:             id,
		UseCase:            p.UseCase,
		ClientSeed:         p.ClientSeed,
		EligibleValidators: p.EligibleValidators,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": requestID})
}

// Vote handles POST /api/markets/{id}/votes.
func (h *MarketHandler) Vote(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var p struct {
		Caller  domain.ID `json:"caller"`
		Outcome uint8     `json:"outcome"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	finish(w, h.resolutions.ValidatorVote(r.Context(), time.Now(), domain.ValidatorVoteParams{
		Caller:  p.Caller,
		Market:  id,
		Outcome: p.Outcome,
	}))
}

// Get handles GET /api/markets/{id}.
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	market, err := h.betting.GetMarket(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// Probabilities handles GET /api/markets/{id}/probabilities.
func (h *MarketHandler) Probabilities(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	probs, err := h.betting.Probabilities(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int64{"probabilities": probs})
}

// GetPosition handles GET /api/markets/{id}/positions/{bettor}.
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	bettor, err := pathID(r, "bettor")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bettor id"})
		return
	}
	pos, err := h.betting.GetPosition(r.Context(), id, bettor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// GetResolution handles GET /api/markets/{id}/resolution.
func (h *MarketHandler) GetResolution(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	res, err := h.resolutions.GetResolution(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func marketID(w http.ResponseWriter, r *http.Request) (domain.ID, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid market id"})
		return domain.ID{}, false
	}
	return id, true
}
