package backup

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Cursor is the subset of a driver cursor the dumper needs. *mongo.Cursor
// satisfies it directly.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// Database is the read surface the backup pipeline needs from the document
// store.
type Database interface {
	// CollectionNames lists every collection in the database.
	CollectionNames(ctx context.Context) ([]string, error)
	// Find opens a cursor over all documents of a collection.
	Find(ctx context.Context, collection string) (Cursor, error)
}

type mongoDatabase struct {
	db *mongo.Database
}

// NewDatabase wraps a mongo database handle as a backup Database.
func NewDatabase(db *mongo.Database) Database {
	return &mongoDatabase{db: db}
}

func (m *mongoDatabase) CollectionNames(ctx context.Context) ([]string, error) {
	return m.db.ListCollectionNames(ctx, bson.D{})
}

func (m *mongoDatabase) Find(ctx context.Context, collection string) (Cursor, error) {
	return m.db.Collection(collection).Find(ctx, bson.D{})
}
