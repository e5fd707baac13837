// Package mongo implements statestore.Store on top of MongoDB, the
// production backing store named in SPEC_FULL.md §3 (AMBIENT: Persistence).
// Grounded on features/run/mongo/store.go's collection/document conventions.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/open-swe/agent-engine/internal/state"
	"github.com/open-swe/agent-engine/internal/statestore"
)

const defaultCollection = "threads"

// Store implements statestore.Store over a MongoDB collection keyed by
// Thread.ThreadID (stored as the document's _id).
type Store struct {
	coll *mongo.Collection
}

// New builds a Store using the given database and collection name. An empty
// collection name defaults to "threads".
func New(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = defaultCollection
	}
	return &Store{coll: db.Collection(collection)}
}

// Get loads a thread by id, translating a missing document into
// statestore.ErrNotFound.
func (s *Store) Get(ctx context.Context, threadID string) (*state.Thread, error) {
	var t state.Thread
	err := s.coll.FindOne(ctx, bson.M{"_id": threadID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, statestore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get thread %q: %w", threadID, err)
	}
	return &t, nil
}

// Put upserts the thread document by its ThreadID.
func (s *Store) Put(ctx context.Context, thread *state.Thread) error {
	if thread.ThreadID == "" {
		return fmt.Errorf("mongo: thread id is required")
	}
	opts := options.Replace().SetUpsert(true)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": thread.ThreadID}, thread, opts)
	if err != nil {
		return fmt.Errorf("mongo: put thread %q: %w", thread.ThreadID, err)
	}
	return nil
}

// Delete removes the thread document; deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": threadID})
	if err != nil {
		return fmt.Errorf("mongo: delete thread %q: %w", threadID, err)
	}
	return nil
}
