package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vetle/clinicd/internal/model"
)

// ErrNoSession is returned when a token does not resolve to a live session.
var ErrNoSession = errors.New("no session for token")

// MongoSessionStore resolves session tokens against the sessions
// collection. Tokens are stored hashed; the raw token never touches the
// database.
type MongoSessionStore struct {
	manager *Manager
}

func NewMongoSessionStore(manager *Manager) *MongoSessionStore {
	return &MongoSessionStore{manager: manager}
}

// Lookup returns the session for a raw token, or ErrNoSession if the token
// is unknown or expired.
func (s *MongoSessionStore) Lookup(ctx context.Context, token string) (*model.Session, error) {
	db, err := s.manager.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	hash := sha256.Sum256([]byte(token))
	fingerprint := hex.EncodeToString(hash[:])

	var session model.Session
	err = db.Collection(model.CollectionSessions).
		FindOne(ctx, bson.M{"tokenHash": fingerprint}).
		Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if session.Expired(time.Now()) {
		return nil, ErrNoSession
	}
	return &session, nil
}
