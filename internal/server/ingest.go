package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"TrancheVault/internal/ingestion"
)

// maxIngestBody bounds ingest request bodies.
const maxIngestBody = 1 << 20

// registerIngestHandlers adds the write surface: manual event injection
// for keepers, operators and governance tooling. Bodies use the same JSON
// wire format as the NATS subjects, so the one parser validates both paths.
func (s *GRPCServer) registerIngestHandlers(mux *runtime.ServeMux) error {
	handlers := []struct {
		pattern   string
		eventType string
	}{
		{"/v1/deposits", "DepositReceived"},
		{"/v1/withdrawals", "WithdrawRequested"},
		{"/v1/withdrawals/fulfill", "WithdrawFulfill"},
		{"/v1/withdrawals/batch", "WithdrawBatchFulfill"},
		{"/v1/purchases/commit", "PurchaseCommitted"},
		{"/v1/purchases/reveal", "PurchaseRevealed"},
		{"/v1/purchases/cancel", "PurchaseCancelled"},
		{"/v1/admin/shutdown", "ShutdownInitiated"},
	}

	for _, h := range handlers {
		eventType := h.eventType
		err := mux.HandlePath("POST", h.pattern, func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
			s.handleIngest(w, r, eventType)
		})
		if err != nil {
			return fmt.Errorf("handle POST %s: %w", h.pattern, err)
		}
	}
	return nil
}

func (s *GRPCServer) handleIngest(w http.ResponseWriter, r *http.Request, eventType string) {
	if s.deps.Ingest == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("ingest channel not configured"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}

	evt, err := ingestion.ParseRawEvent(ingestion.RawEvent{Data: body}, eventType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	select {
	case s.deps.Ingest <- evt:
	case <-r.Context().Done():
		writeError(w, http.StatusRequestTimeout, r.Context().Err())
		return
	}

	s.log.Info().
		Str("type", eventType).
		Str("key", evt.IdempotencyKey()).
		Msg("event accepted via HTTP ingest")

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":          "accepted",
		"event_type":      eventType,
		"idempotency_key": evt.IdempotencyKey(),
	})
}
