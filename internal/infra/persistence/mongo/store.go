// Package mongo provides a MongoDB-backed document store. Documents are stored
// natively in BSON, one Mongo collection per kind, and updates use $set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"labcore/pkg/domain"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultURI      = "mongodb://localhost:27017"
	defaultDatabase = "labcore"
	connectTimeout  = 10 * time.Second
)

var _ domain.DocumentStore = (*Store)(nil)

// Store implements domain.DocumentStore over a Mongo database.
type Store struct {
	client      *mongo.Client
	db          *mongo.Database
	entities    *Collection[domain.Entity]
	collections *Collection[domain.Collection]
	attributes  *Collection[domain.Attribute]
	activity    *Collection[domain.Activity]
	pending     *Collection[domain.PendingWrite]
}

// Open connects to uri and selects database. Empty arguments use local defaults.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		uri = defaultURI
	}
	if database == "" {
		database = defaultDatabase
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return newStore(client, client.Database(database)), nil
}

func newStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:      client,
		db:          db,
		entities:    NewCollection[domain.Entity](db, domain.KindEntity, "owner"),
		collections: NewCollection[domain.Collection](db, domain.KindCollection, "owner"),
		attributes:  NewCollection[domain.Attribute](db, domain.KindAttribute, "owner"),
		activity:    NewCollection[domain.Activity](db, domain.KindActivity, "actor"),
		pending:     NewCollection[domain.PendingWrite](db, domain.KindPendingWrite, ""),
	}
}

func (s *Store) Entities() domain.DocumentCollection[domain.Entity]       { return s.entities }
func (s *Store) Collections() domain.DocumentCollection[domain.Collection] { return s.collections }
func (s *Store) Attributes() domain.DocumentCollection[domain.Attribute]   { return s.attributes }
func (s *Store) Activity() domain.DocumentCollection[domain.Activity]      { return s.activity }
func (s *Store) PendingWrites() domain.DocumentCollection[domain.PendingWrite] {
	return s.pending
}

// Database exposes the selected database for integration testing hooks.
func (s *Store) Database() *mongo.Database { return s.db }

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Collection stores one document kind in the Mongo collection named after it.
type Collection[T domain.Document] struct {
	coll       *mongo.Collection
	kind       domain.Kind
	ownerField string
}

// NewCollection binds kind to db. ownerField names the field Filter.Owner
// matches; empty disables owner filtering for the kind.
func NewCollection[T domain.Document](db *mongo.Database, kind domain.Kind, ownerField string) *Collection[T] {
	return &Collection[T]{coll: db.Collection(string(kind)), kind: kind, ownerField: ownerField}
}

// FindOne loads the document with id.
func (c *Collection[T]) FindOne(ctx context.Context, id string) (T, bool, error) {
	var doc T
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("mongo: find %s %s: %w", c.kind, id, err)
	}
	return doc, true, nil
}

// InsertOne stores a new document.
func (c *Collection[T]) InsertOne(ctx context.Context, doc T) error {
	id := doc.DocumentID()
	if id == "" {
		return fmt.Errorf("%w: %s document without id", domain.ErrInvalid, c.kind)
	}
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s %s", domain.ErrDuplicateID, c.kind, id)
		}
		return fmt.Errorf("mongo: insert %s %s: %w", c.kind, id, err)
	}
	return nil
}

// UpdateOne applies patch with a single $set.
func (c *Collection[T]) UpdateOne(ctx context.Context, id string, patch domain.Patch[T]) (domain.UpdateResult, error) {
	fields := patch.Fields()
	if len(fields) == 0 {
		n, err := c.coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return domain.UpdateResult{}, fmt.Errorf("mongo: count %s %s: %w", c.kind, id, err)
		}
		return domain.UpdateResult{Matched: n}, nil
	}
	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("mongo: update %s %s: %w", c.kind, id, err)
	}
	return domain.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

// DeleteOne removes the document with id.
func (c *Collection[T]) DeleteOne(ctx context.Context, id string) (bool, error) {
	res, err := c.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("mongo: delete %s %s: %w", c.kind, id, err)
	}
	return res.DeletedCount > 0, nil
}

// Find returns matching documents in natural order.
func (c *Collection[T]) Find(ctx context.Context, filter domain.Filter) ([]T, error) {
	opts := options.Find().SetSort(bson.D{{Key: "$natural", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := c.coll.Find(ctx, buildFilter(filter, c.ownerField), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: find %s: %w", c.kind, err)
	}
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo: decode %s: %w", c.kind, err)
	}
	return out, nil
}

func buildFilter(filter domain.Filter, ownerField string) bson.M {
	query := bson.M{}
	if len(filter.IDs) > 0 {
		query["_id"] = bson.M{"$in": filter.IDs}
	}
	if filter.Owner != "" {
		if ownerField == "" {
			// Kinds without an owner never match an owner filter.
			query["_id"] = bson.M{"$in": []string{}}
		} else {
			query[ownerField] = filter.Owner
		}
	}
	return query
}
