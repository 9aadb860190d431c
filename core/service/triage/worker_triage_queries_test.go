package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
	"triage_worker/pkg/apperr"
)

type fakeInbound struct {
	jobs []*out.InboundEmailJob
	err  error
}

func (f *fakeInbound) EnqueueInbound(ctx context.Context, job *out.InboundEmailJob) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, job)
	return "1-0", nil
}

type routingGraph struct {
	fakeGraph
	sender string
}

func (g *routingGraph) SenderRouting(ctx context.Context, sender string) ([]domain.RoutingCount, error) {
	g.sender = sender
	return []domain.RoutingCount{{Target: "CLAIMS", Count: 3}}, nil
}

func TestQueries_Unavailable(t *testing.T) {
	svc := newTestService(t, Deps{})
	ctx := context.Background()

	_, err := svc.GetResult(ctx, uuid.New())
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))

	_, err = svc.PendingReview(ctx, 10)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))

	_, err = svc.SenderRouting(ctx, "example.com")
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))

	_, err = svc.Enqueue(ctx, &domain.RawEmail{})
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))

	_, err = svc.LabelCounts(ctx)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnavailable))
}

func TestGetResult_NotFoundPassesThrough(t *testing.T) {
	svc := newTestService(t, Deps{Verdicts: &fakeVerdicts{}})

	_, err := svc.GetResult(context.Background(), uuid.New())
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestSenderRouting(t *testing.T) {
	graph := &routingGraph{}
	svc := newTestService(t, Deps{Graph: graph})

	counts, err := svc.SenderRouting(context.Background(), "  Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "example.com", graph.sender)
	assert.Equal(t, []domain.RoutingCount{{Target: "CLAIMS", Count: 3}}, counts)

	_, err = svc.SenderRouting(context.Background(), " ")
	assert.True(t, apperr.IsCode(err, apperr.CodeMissingField))
}

func TestEnqueue(t *testing.T) {
	inbound := &fakeInbound{}
	svc := newTestService(t, Deps{Inbound: inbound})

	id, err := svc.Enqueue(context.Background(), claimEmail("e-1"))
	require.NoError(t, err)
	assert.Equal(t, "1-0", id)
	require.Len(t, inbound.jobs, 1)
	assert.Equal(t, "e-1", inbound.jobs[0].Email.ID)
	assert.False(t, inbound.jobs[0].EnqueuedAt.IsZero())

	_, err = svc.Enqueue(context.Background(), nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeMissingField))

	anonymous := claimEmail("")
	_, err = svc.Enqueue(context.Background(), anonymous)
	require.NoError(t, err)
	require.Len(t, inbound.jobs, 2)
	assert.NotEmpty(t, inbound.jobs[1].Email.ID)
	assert.Empty(t, anonymous.ID)

	failing := newTestService(t, Deps{Inbound: &fakeInbound{err: errors.New("redis down")}})
	_, err = failing.Enqueue(context.Background(), claimEmail("e-2"))
	assert.True(t, apperr.IsCode(err, apperr.CodeExternalError))
}
