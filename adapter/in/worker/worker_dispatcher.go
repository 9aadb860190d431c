package worker

import (
	"context"

	"triage_worker/adapter/out/messaging"
	"triage_worker/pkg/logger"
)

// Handler routes stream messages to processors by stream name.
type Handler struct {
	streams   messaging.Streams
	processor *TriageProcessor
}

var _ messaging.JobHandler = (*Handler)(nil)

// NewHandler creates a stream job handler.
func NewHandler(streams messaging.Streams, processor *TriageProcessor) *Handler {
	return &Handler{streams: streams, processor: processor}
}

// Handle implements messaging.JobHandler.
func (h *Handler) Handle(ctx context.Context, stream string, data []byte) error {
	logger.Debug("Processing message from %s", stream)

	switch stream {
	case h.streams.Inbound:
		return h.processor.ProcessInbound(ctx, data)
	default:
		logger.Warn("Unknown stream: %s", stream)
		return nil
	}
}
