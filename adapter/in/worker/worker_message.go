// Package worker drives the triage service from Redis stream jobs.
package worker

import (
	"fmt"

	"github.com/goccy/go-json"

	"triage_worker/adapter/out/messaging"
	"triage_worker/core/port/out"
)

// DecodeInbound decodes an inbound email job. Payloads that cannot be
// decoded are poison: retrying them can never succeed.
func DecodeInbound(data []byte) (*out.InboundEmailJob, error) {
	var job out.InboundEmailJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: decode inbound job: %v", messaging.ErrPoison, err)
	}
	if job.Email == nil {
		return nil, fmt.Errorf("%w: inbound job has no email", messaging.ErrPoison)
	}
	return &job, nil
}
