package backup

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vetle/clinicd/internal/model"
)

// HistoryStore persists BackupRecord metadata for manual backups.
type HistoryStore interface {
	Insert(ctx context.Context, rec *model.BackupRecord) error
	List(ctx context.Context, limit int, cursor string) ([]model.BackupRecord, bool, error)
	// DeleteByPath removes records referencing a pruned archive file.
	DeleteByPath(ctx context.Context, path string) error
}

// MongoHistoryStore stores backup records in the backuphistories collection.
type MongoHistoryStore struct {
	col *mongo.Collection
}

func NewMongoHistoryStore(db *mongo.Database) *MongoHistoryStore {
	return &MongoHistoryStore{col: db.Collection(model.CollectionBackupHistories)}
}

func (s *MongoHistoryStore) Insert(ctx context.Context, rec *model.BackupRecord) error {
	now := time.Now()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if rec.BackupDate.IsZero() {
		rec.BackupDate = now
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if _, err := s.col.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert backup record: %w", err)
	}
	return nil
}

func (s *MongoHistoryStore) List(ctx context.Context, limit int, cursor string) ([]model.BackupRecord, bool, error) {
	filter := bson.M{}
	if cursor != "" {
		id, err := primitive.ObjectIDFromHex(cursor)
		if err != nil {
			return nil, false, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		filter["_id"] = bson.M{"$gt": id}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit + 1))

	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, false, fmt.Errorf("list backup records: %w", err)
	}
	defer cur.Close(ctx)

	var records []model.BackupRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, false, fmt.Errorf("decode backup records: %w", err)
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}
	return records, hasMore, nil
}

func (s *MongoHistoryStore) DeleteByPath(ctx context.Context, path string) error {
	if _, err := s.col.DeleteMany(ctx, bson.M{"path": path}); err != nil {
		return fmt.Errorf("delete backup records for %s: %w", path, err)
	}
	return nil
}
