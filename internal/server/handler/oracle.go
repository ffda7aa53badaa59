package handler

import (
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/service"
)

// OracleHandler receives signed randomness callbacks from the oracle.
type OracleHandler struct {
	resolutions *service.ResolutionService
	logger      *slog.Logger
}

// NewOracleHandler creates an OracleHandler.
func NewOracleHandler(resolutions *service.ResolutionService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{resolutions: resolutions, logger: logger}
}

// Callback handles POST /api/oracle/callback. The signature covers
// Keccak256(request_id || seed) and must verify against the registered
// oracle identity.
func (h *OracleHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var p struct {
		RequestID string      `json:"request_id"`
		Seed      domain.Seed `json:"seed"`
		Signature string      `json:"signature"` // hex, 65 bytes
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sig, err := hex.DecodeString(p.Signature)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature encoding"})
		return
	}

	if err := h.resolutions.HandleCallback(r.Context(), time.Now(), p.RequestID, p.Seed, sig); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
