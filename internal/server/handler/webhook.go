package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	s3blob "github.com/outcomefi/vaultsync/internal/blob/s3"
	"github.com/outcomefi/vaultsync/internal/chain"
	"github.com/outcomefi/vaultsync/internal/domain"
	"github.com/outcomefi/vaultsync/internal/engine"
)

// WebhookHandler ingests batches of raw chain logs delivered by the webhook
// provider. The body is a JSON array of log objects; each log is decoded and
// applied in order. Logs for unrecognized event names are skipped, logs for a
// misassigned interface abort the batch, and removed (reorged-out) logs are
// dropped before decoding.
type WebhookHandler struct {
	decoder *chain.Decoder
	router  *engine.Router
	archive domain.BlobWriter // optional; best-effort raw payload capture
	logger  *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler. archive may be nil.
func NewWebhookHandler(decoder *chain.Decoder, router *engine.Router, archive domain.BlobWriter, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		decoder: decoder,
		router:  router,
		archive: archive,
		logger:  logger.With(slog.String("handler", "webhook")),
	}
}

// VaultEvents handles manager and per-market vault log deliveries.
// POST /webhooks/vault-events
func (h *WebhookHandler) VaultEvents(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, "vault")
}

// GenesisEvents handles shared genesis-vault log deliveries.
// POST /webhooks/genesis-events
func (h *WebhookHandler) GenesisEvents(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, "genesis")
}

func (h *WebhookHandler) ingest(w http.ResponseWriter, r *http.Request, source string) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	h.archivePayload(ctx, source, body)

	var logs []chain.RawLog
	if err := json.Unmarshal(body, &logs); err != nil {
		writeError(w, http.StatusBadRequest, "malformed log batch")
		return
	}

	// Deliveries are applied sequentially in payload order; the provider
	// sends logs block-ordered and the idempotency key absorbs redelivery.
	for _, l := range logs {
		if l.Removed {
			h.logger.WarnContext(ctx, "reorged-out log, dropping",
				slog.String("tx", l.TransactionHash.Hex()),
				slog.Uint64("log_index", uint64(l.LogIndex)),
			)
			continue
		}

		ev, err := h.decoder.Decode(l)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownEvent) {
				h.logger.WarnContext(ctx, "unknown event, skipping",
					slog.String("tx", l.TransactionHash.Hex()),
					slog.String("error", err.Error()),
				)
				continue
			}
			// ErrUnknownInterface and malformed payloads are configuration
			// errors and must surface.
			h.fail(ctx, w, source, fmt.Errorf("decode log: %w", err))
			return
		}

		if err := h.router.Apply(ctx, l, ev); err != nil {
			h.fail(ctx, w, source, fmt.Errorf("apply %s: %w", ev.EventName(), err))
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *WebhookHandler) fail(ctx context.Context, w http.ResponseWriter, source string, err error) {
	h.logger.ErrorContext(ctx, "webhook batch failed",
		slog.String("source", source),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// archivePayload writes the exact delivered bytes to object storage. Failures
// are logged, never surfaced; ingestion does not depend on the archive.
func (h *WebhookHandler) archivePayload(ctx context.Context, source string, body []byte) {
	if h.archive == nil {
		return
	}
	path := s3blob.PayloadPath(source, time.Now(), uuid.NewString()[:8])
	if err := h.archive.Put(ctx, path, bytes.NewReader(body), "application/json"); err != nil {
		h.logger.WarnContext(ctx, "payload archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
