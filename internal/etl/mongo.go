package etl

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/orderload/pkg/logger"
)

// MongoRunStore keeps one document per run summary, keyed by run id.
type MongoRunStore struct {
	Client     *mongo.Client
	Database   string
	Collection string
}

func NewMongoRunStore(client *mongo.Client, database, collection string) *MongoRunStore {
	return &MongoRunStore{Client: client, Database: database, Collection: collection}
}

func (m *MongoRunStore) coll() *mongo.Collection {
	return m.Client.Database(m.Database).Collection(m.Collection)
}

// Save upserts s so that re-saving a run replaces its document.
func (m *MongoRunStore) Save(ctx context.Context, s *Summary) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := m.coll().ReplaceOne(ctx, bson.M{"_id": s.RunID}, s, opts); err != nil {
		return err
	}
	logger.Info("run summary saved", "run_id", s.RunID, "collection", m.Collection)
	return nil
}

// Recent returns up to limit summaries, newest first.
func (m *MongoRunStore) Recent(ctx context.Context, limit int64) ([]Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	findOpts := options.Find().SetLimit(limit).SetSort(bson.M{"started_at": -1})
	cursor, err := m.coll().Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Summary
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
