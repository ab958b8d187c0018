package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bindery/internal/constants"
)

// EnsureRuleIndexes creates the indexes the rule catalog queries rely on.
// Safe to call repeatedly.
func EnsureRuleIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(constants.MongoRulesCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "enabled", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetName("idx_rules_enabled_type"),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("idx_rules_name").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_rules_updated_at"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create rule indexes: %w", err)
		}
	}

	return nil
}
