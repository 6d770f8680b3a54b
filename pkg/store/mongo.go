package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/tablelink/tablelink/pkg/errors"
	"github.com/tablelink/tablelink/pkg/schema"
)

const collectionsCollection = "tablelink_collections"

// MongoCollectionStore persists derived collections in the host's MongoDB
// metadata store.
type MongoCollectionStore struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoCollectionStore connects to MongoDB and ensures a unique index on
// collection names so duplicate creates are rejected at the store level.
func NewMongoCollectionStore(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoCollectionStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to connect to collection store")
	}

	coll := client.Database(database).Collection(collectionsCollection)

	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to ensure collection name index")
	}

	return &MongoCollectionStore{
		collection: coll,
		logger:     logger.With(zap.String("component", "collection_store")),
	}, nil
}

// Exists reports whether a collection with the given name exists.
func (s *MongoCollectionStore) Exists(ctx context.Context, name string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"name": name}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeCollectionWriteFailed, "failed to check collection existence")
	}
	return count > 0, nil
}

// Create writes a derived collection. A duplicate name is rejected by the
// unique index and surfaces as collection_already_exists.
func (s *MongoCollectionStore) Create(ctx context.Context, collection schema.DerivedCollection) error {
	_, err := s.collection.InsertOne(ctx, bson.M{
		"name":         collection.Name,
		"source_table": collection.SourceTable,
		"fields":       collection.Fields,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.Newf(errors.ErrorTypeCollectionAlreadyExists, "collection %s already exists", collection.Name)
		}
		return errors.Wrap(err, errors.ErrorTypeCollectionWriteFailed, "failed to write derived collection")
	}

	s.logger.Debug("derived collection written",
		zap.String("name", collection.Name),
		zap.Int("fields", len(collection.Fields)))
	return nil
}
