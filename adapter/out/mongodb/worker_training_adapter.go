package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"triage_worker/core/domain"
	"triage_worker/core/port/out"
)

// =============================================================================
// MongoDB Training Example Adapter
// =============================================================================

const collectionTrainingExamples = "training_examples"

// TrainingAdapter implements out.TrainingExampleStore using MongoDB.
// One document per email; relabelling an email replaces its example.
type TrainingAdapter struct {
	collection *mongo.Collection
}

var _ out.TrainingExampleStore = (*TrainingAdapter)(nil)

// NewTrainingAdapter creates a new MongoDB training example adapter.
func NewTrainingAdapter(db *mongo.Database) *TrainingAdapter {
	return &TrainingAdapter{collection: db.Collection(collectionTrainingExamples)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *TrainingAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "template_version", Value: 1},
				{Key: "label", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type trainingDocument struct {
	EmailID         string    `bson:"email_id"`
	Input           string    `bson:"input"`
	TemplateVersion int       `bson:"template_version"`
	Label           int       `bson:"label"`
	LabelName       string    `bson:"label_name"`
	LabeledBy       string    `bson:"labeled_by,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func toTrainingDocument(e *domain.TrainingExample, now time.Time) *trainingDocument {
	return &trainingDocument{
		EmailID:         e.EmailID,
		Input:           string(e.Input),
		TemplateVersion: e.TemplateVersion,
		Label:           e.Label.ID(),
		LabelName:       e.Label.String(),
		LabeledBy:       e.LabeledBy,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       now,
	}
}

func (d *trainingDocument) toEntity() (*domain.TrainingExample, error) {
	label, err := domain.CategoryFromID(d.Label)
	if err != nil {
		return nil, fmt.Errorf("training example %s: %w", d.EmailID, err)
	}
	return &domain.TrainingExample{
		EmailID:         d.EmailID,
		Input:           domain.CanonicalInput(d.Input),
		TemplateVersion: d.TemplateVersion,
		Label:           label,
		LabelName:       label.String(),
		LabeledBy:       d.LabeledBy,
		CreatedAt:       d.CreatedAt,
	}, nil
}

// =============================================================================
// Operations
// =============================================================================

// SaveExample upserts the example for its email.
func (a *TrainingAdapter) SaveExample(ctx context.Context, example *domain.TrainingExample) error {
	doc := toTrainingDocument(example, time.Now().UTC())

	opts := options.Replace().SetUpsert(true)
	_, err := a.collection.ReplaceOne(ctx, bson.M{"email_id": doc.EmailID}, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save training example: %w", err)
	}
	return nil
}

// GetExample returns the example stored for an email.
func (a *TrainingAdapter) GetExample(ctx context.Context, emailID string) (*domain.TrainingExample, error) {
	var doc trainingDocument
	err := a.collection.FindOne(ctx, bson.M{"email_id": emailID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training example: %w", err)
	}
	return doc.toEntity()
}

// countByLabelPipeline groups examples of the current template version by label.
func countByLabelPipeline(templateVersion int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"template_version": templateVersion}}},
		{{Key: "$group", Value: bson.M{"_id": "$label", "count": bson.M{"$sum": 1}}}},
	}
}

type labelCount struct {
	Label int   `bson:"_id"`
	Count int64 `bson:"count"`
}

// CountByLabel counts examples per category for the current template
// version. Examples rendered by an older template are not comparable.
func (a *TrainingAdapter) CountByLabel(ctx context.Context) (map[domain.Category]int64, error) {
	cursor, err := a.collection.Aggregate(ctx, countByLabelPipeline(domain.ModelInputTemplateVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to count training examples: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []labelCount
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode label counts: %w", err)
	}
	return labelCounts(rows), nil
}

// labelCounts fills every category, skipping ids that are no longer valid.
func labelCounts(rows []labelCount) map[domain.Category]int64 {
	counts := make(map[domain.Category]int64, len(domain.Categories()))
	for _, c := range domain.Categories() {
		counts[c] = 0
	}
	for _, row := range rows {
		if c, err := domain.CategoryFromID(row.Label); err == nil {
			counts[c] = row.Count
		}
	}
	return counts
}
