package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/service"
)

// StreamHandler exposes the stream ledger operations over HTTP.
type StreamHandler struct {
	streams *service.StreamService
	logger  *slog.Logger
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(streams *service.StreamService, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{streams: streams, logger: logger}
}

// Initialize handles POST /api/streams.
func (h *StreamHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Caller  domain.ID         `json:"caller"`
		Name    string            `json:"name"`
		Mint    domain.ID         `json:"mint"`
		Type    domain.StreamType `json:"type"`
		EndTime *int64            `json:"end_time"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	stream, err := h.streams.Initialize(r.Context(), time.Now(), domain.InitializeParams{
		Caller:  p.Caller,
		Name:    p.Name,
		Mint:    p.Mint,
		Type:    p.Type,
		EndTime: p.EndTime,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stream)
}

// Start handles POST /api/streams/{id}/start.
func (h *StreamHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, ok := streamID(w, r)
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
	finish(w, h.streams.StartStream(r.Context(), time.Now(), domain.StartStreamParams{
		Caller: p.Caller,
		Stream: id,
	}))
}

// Deposit handles POST /api/streams/{id}/deposit.
func (h *StreamHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	id, ok := streamID(w, r)
	if !ok {
		return
	}
	var p struct {
		Caller domain.ID `json:"caller"`
		Mint   domain.ID `json:"mint"`
		Amount int64     `json:"amount"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	finish(w, h.streams.Deposit(r.Context(), time.Now(), domain.DepositParams{
		Caller: p.Caller,
		Stream: id,
		Mint:   p.Mint,
		Amount: p.Amount,
	}))
}

// Distribute handles POST /api/streams/{id}/distribute.
func (h *StreamHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	id, ok := streamID(w, r)
	if !ok {
		return
	}
	var p struct {
		Caller    domain.ID `json:"caller"`
		Recipient domain.ID `json:"recipient"`
		Amount    int64     `json:"amount"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	finish(w, h.streams.Distribute(r.Context(), time.Now(), domain.DistributeParams{
		Caller:    p.Caller,
		Stream:    id,
		Recipient: p.Recipient,
		Amount:    p.Amount,
	}))
}

// Refund handles POST /api/streams/{id}/refund.
func (h *StreamHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := streamID(w, r)
	if !ok {
		return
	}
	var p struct {
		Caller domain.ID `json:"caller"`
		Donor  domain.ID `json:"donor"`
		Mint   domain.ID `json:"mint"`
		Amount int64     `json:"amount"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	finish(w, h.streams.Refund(r.Context(), time.Now(), domain.RefundParams{
		Caller: p.Caller,
		Stream: id,
		Donor:  p.Donor,
		Mint:   p.Mint,
		Amount: p.Amount,
	}))
}

// Complete handles POST /api/streams/{id}/complete.
func (h *StreamHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := streamID(w, r)
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
	finish(w, h.streams.CompleteStream(r.Context(), time.Now(), domain.CompleteStreamParams{
		Caller: p.Caller,
		Stream: id,
	}))
}

// Update handles POST /api/streams/{id}/update.
func (h *StreamHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := streamID(w, r)
	if !ok {
		return
	}
	var p struct {
		Caller    domain.ID            `json:"caller"`
		NewEnd    *int64               `json:"new_end"`
		NewStatus *domain.StreamStatus `json:"new_status"`
	}
	if err := decodeBody(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	finish(w, h.streams.UpdateStream(r.Context(), time.Now(), domain.UpdateStreamParams{
		Caller:    p.Caller,
		Stream:    id,
		NewEnd:    p.NewEnd,
		NewStatus: p.NewStatus,
	}))
}

// Get handles GET /api/streams/{id}.
func (h *StreamHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := streamID(w, r)
	if !ok {
		return
	}
	stream, err := h.streams.GetStream(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stream)
}

// ListDonors handles GET /api/streams/{id}/donors.
func (h *StreamHandler) ListDonors(w http.ResponseWriter, r *http.Request) {
	id, ok := streamID(w, r)
	if !ok {
		return
	}
	donors, err := h.streams.ListDonors(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, donors)
}

// streamID parses the {id} path parameter, answering 400 on bad input.
func streamID(w http.ResponseWriter, r *http.Request) (domain.ID, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid stream id"})
		return domain.ID{}, false
	}
	return id, true
}

// finish answers 204 on success and the mapped engine failure otherwise.
func finish(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
