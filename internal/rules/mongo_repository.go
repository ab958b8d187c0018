package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bindery/internal/constants"
	pkgerrors "bindery/pkg/errors"
)

// ruleDocument is the BSON shape of a rule. Config is kept raw so the
// variant can be decoded through the same type switch the JSON path uses.
type ruleDocument struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description,omitempty"`
	Type        string    `bson:"type"`
	Enabled     bool      `bson:"enabled"`
	Config      bson.Raw  `bson:"config"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
	CreatedBy   string    `bson:"created_by"`
}

func toDocument(rule *Rule) (*ruleDocument, error) {
	rawCfg, err := bson.Marshal(rule.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rule config: %w", err)
	}
	return &ruleDocument{
		ID:          rule.ID,
		Name:        rule.Name,
		Description: rule.Description,
		Type:        string(rule.Type),
		Enabled:     rule.Enabled,
		Config:      rawCfg,
		CreatedAt:   rule.CreatedAt,
		UpdatedAt:   rule.UpdatedAt,
		CreatedBy:   rule.CreatedBy,
	}, nil
}

func fromDocument(doc *ruleDocument) (*Rule, error) {
	t := Type(doc.Type)

	var cfg Config
	switch t {
	case TypeRateLimit:
		cfg = &RateLimitConfig{}
	case TypeFeatureLimit:
		cfg = &FeatureLimitConfig{}
	case TypeAccessControl:
		cfg = &AccessControlConfig{}
	case TypeContentLimit:
		cfg = &ContentLimitConfig{}
	case TypeTimeBased:
		cfg = &TimeBasedConfig{}
	default:
		return nil, fmt.Errorf("rule %s has unknown type %q", doc.ID, doc.Type)
	}

	if err := bson.Unmarshal(doc.Config, cfg); err != nil {
		return nil, fmt.Errorf("rule %s has invalid stored config: %w", doc.ID, err)
	}

	return &Rule{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Type:        t,
		Enabled:     doc.Enabled,
		Config:      cfg,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		CreatedBy:   doc.CreatedBy,
	}, nil
}

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{
		collection: db.Collection(constants.MongoRulesCollection),
	}
}

func (r *mongoRepository) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	doc, err := toDocument(rule)
	if err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("rule with name '%s' already exists", rule.Name))
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (r *mongoRepository) Get(ctx context.Context, id string) (*Rule, error) {
	var doc ruleDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("rule '%s' not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return fromDocument(&doc)
}

func (r *mongoRepository) List(ctx context.Context) ([]Rule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.queryRules(ctx, bson.M{}, opts)
}

func (r *mongoRepository) ListEnabled(ctx context.Context) ([]Rule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.queryRules(ctx, bson.M{"enabled": true}, opts)
}

func (r *mongoRepository) queryRules(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Rule, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []ruleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	result := make([]Rule, 0, len(docs))
	for i := range docs {
		rule, err := fromDocument(&docs[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}

	return result, nil
}

func (r *mongoRepository) Update(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now()

	doc, err := toDocument(rule)
	if err != nil {
		return err
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": rule.ID}, bson.M{"$set": doc})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("rule with name '%s' already exists", rule.Name))
		}
		return fmt.Errorf("failed to update rule: %w", err)
	}

	if result.MatchedCount == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("rule '%s' not found", rule.ID))
	}

	return nil
}

func (r *mongoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	if result.DeletedCount == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("rule '%s' not found", id))
	}

	return nil
}
