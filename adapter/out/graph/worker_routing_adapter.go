package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
)

// =============================================================================
// Neo4j Routing Graph Adapter
// =============================================================================

// unknownSender is the node used when an email carries no sender domain.
const unknownSender = "unknown"

// reviewTarget names the review queue node in the graph.
const reviewTarget = "NEEDS_REVIEW"

// RoutingAdapter implements out.VerdictGraph using Neo4j. It keeps one
// edge per sender domain and target with a running count:
//
//	(:SenderDomain)-[:ROUTED_TO {count}]->(:Category)
//	(:SenderDomain)-[:SENT_FOR_REVIEW {count}]->(:ReviewQueue)
type RoutingAdapter struct {
	driver neo4j.DriverWithContext
	dbName string
}

var _ out.VerdictGraph = (*RoutingAdapter)(nil)

// NewRoutingAdapter creates a new Neo4j routing adapter.
func NewRoutingAdapter(driver neo4j.DriverWithContext, dbName string) *RoutingAdapter {
	return &RoutingAdapter{
		driver: driver,
		dbName: dbName,
	}
}

// EnsureIndexes creates the uniqueness constraints of the routing graph.
func (a *RoutingAdapter) EnsureIndexes(ctx context.Context) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT sender_domain_unique IF NOT EXISTS FOR (d:SenderDomain) REQUIRE d.name IS UNIQUE`,
		`CREATE CONSTRAINT category_unique IF NOT EXISTS FOR (c:Category) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT review_queue_unique IF NOT EXISTS FOR (q:ReviewQueue) REQUIRE q.name IS UNIQUE`,
	}

	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create routing constraint: %w", err)
		}
	}
	return nil
}

// RecordRouting increments the edge from the sender domain to the category
// the email was routed to, or to the review queue.
func (a *RoutingAdapter) RecordRouting(ctx context.Context, result *domain.TriageResult) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: a.dbName,
	})
	defer session.Close(ctx)

	query, params := routingQuery(result)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to record routing: %w", err)
	}
	return nil
}

// senderKey is the node name of a sender domain. Domains are case-insensitive.
func senderKey(sender string) string {
	key := strings.ToLower(strings.TrimSpace(sender))
	if key == "" {
		return unknownSender
	}
	return key
}

func routingQuery(result *domain.TriageResult) (string, map[string]any) {
	sender := senderKey(result.SenderDomain)

	if c, ok := result.Verdict.Category(); ok {
		return `
			MERGE (d:SenderDomain {name: $sender})
			MERGE (c:Category {id: $categoryID})
			ON CREATE SET c.name = $categoryName
			MERGE (d)-[r:ROUTED_TO]->(c)
			ON CREATE SET r.count = 0
			SET r.count = r.count + 1, r.last_email_id = $emailID, r.last_at = $at`,
			map[string]any{
				"sender":       sender,
				"categoryID":   int64(c.ID()),
				"categoryName": c.String(),
				"emailID":      result.EmailID,
				"at":           result.CreatedAt.Unix(),
			}
	}

	return `
		MERGE (d:SenderDomain {name: $sender})
		MERGE (q:ReviewQueue {name: $queue})
		MERGE (d)-[r:SENT_FOR_REVIEW]->(q)
		ON CREATE SET r.count = 0
		SET r.count = r.count + 1, r.last_email_id = $emailID, r.last_reason = $reason, r.last_at = $at`,
		map[string]any{
			"sender":  sender,
			"queue":   reviewTarget,
			"emailID": result.EmailID,
			"reason":  result.Verdict.Reason(),
			"at":      result.CreatedAt.Unix(),
		}
}

// SenderRouting returns the routing history of a sender domain, most
// frequent target first.
func (a *RoutingAdapter) SenderRouting(ctx context.Context, sender string) ([]domain.RoutingCount, error) {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: a.dbName,
	})
	defer session.Close(ctx)

	query := `
		MATCH (d:SenderDomain {name: $sender})-[r:ROUTED_TO|SENT_FOR_REVIEW]->(t)
		RETURN coalesce(t.name, $queue) AS target, r.count AS count
		ORDER BY count DESC`

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"sender": senderKey(sender), "queue": reviewTarget})
		if err != nil {
			return nil, err
		}

		var counts []domain.RoutingCount
		for result.Next(ctx) {
			record := result.Record()
			counts = append(counts, domain.RoutingCount{
				Target: getStringValue(record, "target"),
				Count:  getInt64Value(record, "count"),
			})
		}
		return counts, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sender routing: %w", err)
	}
	return res.([]domain.RoutingCount), nil
}

func getStringValue(record *neo4j.Record, key string) string {
	if v, ok := record.Get(key); ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt64Value(record *neo4j.Record, key string) int64 {
	if v, ok := record.Get(key); ok && v != nil {
		if i, ok := v.(int64); ok {
			return i
		}
	}
	return 0
}
