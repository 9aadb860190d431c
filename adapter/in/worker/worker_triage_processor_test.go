package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_worker/adapter/out/messaging"
	"triage_worker/core/domain"
	"triage_worker/core/port/in"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
)

type fakeTriage struct {
	emails []*domain.RawEmail
	err    error
}

func (f *fakeTriage) Triage(ctx context.Context, email *domain.RawEmail) (*domain.TriageResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.emails = append(f.emails, email)
	return &domain.TriageResult{
		ID:      uuid.New(),
		EmailID: email.ID,
		Verdict: domain.Decided(domain.CategoryClaims),
	}, nil
}

func (f *fakeTriage) TriageBatch(ctx context.Context, emails []*domain.RawEmail) ([]*domain.TriageResult, error) {
	return nil, nil
}

func (f *fakeTriage) RecordLabel(ctx context.Context, req *in.RecordLabelRequest) (*domain.TrainingExample, error) {
	return nil, nil
}

func inboundPayload(t *testing.T, email *domain.RawEmail) []byte {
	t.Helper()
	data, err := json.Marshal(&out.InboundEmailJob{Email: email, EnqueuedAt: time.Now()})
	require.NoError(t, err)
	return data
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		poison bool
	}{
		{name: "valid", data: `{"email":{"id":"e-1","subject":"claim"}}`},
		{name: "garbage", data: `{not json`, poison: true},
		{name: "missing email", data: `{"enqueued_at":"2026-01-01T00:00:00Z"}`, poison: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := DecodeInbound([]byte(tt.data))
			if tt.poison {
				assert.ErrorIs(t, err, messaging.ErrPoison)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "e-1", job.Email.ID)
		})
	}
}

func TestHandler_RoutesInbound(t *testing.T) {
	triage := &fakeTriage{}
	h := NewHandler(messaging.DefaultStreams(), NewTriageProcessor(triage))

	email := &domain.RawEmail{ID: "e-7", Subject: domain.Text("Accident claim")}
	err := h.Handle(context.Background(), messaging.StreamInbound, inboundPayload(t, email))
	require.NoError(t, err)
	require.Len(t, triage.emails, 1)
	assert.Equal(t, "e-7", triage.emails[0].ID)
	assert.Equal(t, "Accident claim", domain.Deref(triage.emails[0].Subject))
}

func TestHandler_UnknownStreamIsIgnored(t *testing.T) {
	triage := &fakeTriage{}
	h := NewHandler(messaging.DefaultStreams(), NewTriageProcessor(triage))

	assert.NoError(t, h.Handle(context.Background(), "other", []byte("{")))
	assert.Empty(t, triage.emails)
}

func TestProcessInbound_TriageErrorIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "store failure", err: errors.New("db down")},
		{name: "timeout", err: apperr.Timeout("save triage result", context.DeadlineExceeded)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewTriageProcessor(&fakeTriage{err: tt.err})

			err := p.ProcessInbound(context.Background(), inboundPayload(t, &domain.RawEmail{ID: "e-8"}))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.NotErrorIs(t, err, messaging.ErrPoison)
		})
	}
}
