// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"access_share_bot/internal/config"
	"access_share_bot/internal/domain"
)

// CollectionUsers is the single collection the bot owns.
const CollectionUsers = "users"

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

// runCommand is overridable for tests.
var runCommand = func(ctx context.Context, db *mongo.Database, cmd interface{}) error {
	return db.RunCommand(ctx, cmd).Err()
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Collection returns a collection handle for the given name.
func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Users returns the users collection handle.
func (m *Manager) Users() *mongo.Collection {
	return m.Collection(CollectionUsers)
}

// Ping verifies connectivity against the primary.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Ping(ctx, readpref.Primary())
}

// EnsureBaseIndexes creates the foundational indexes for the users
// collection. The collection is created implicitly if it does not exist.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	userIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("user_id_unique").
				SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().
				SetName("username_lookup"),
		},
	}

	if _, err := createIndexes(ctx, m.Users(), userIndexes); err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}

	return nil
}

// EnsureSchema installs a write-time JSON schema validator on the users
// collection so malformed records are rejected by the database itself.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	cmd := bson.D{
		{Key: "collMod", Value: CollectionUsers},
		{Key: "validator", Value: usersValidator()},
		{Key: "validationLevel", Value: "moderate"},
	}

	if err := runCommand(ctx, m.db, cmd); err != nil {
		return fmt.Errorf("install users schema: %w", err)
	}

	return nil
}

func usersValidator() bson.M {
	statuses := make([]string, len(domain.KnownStatuses))
	copy(statuses, domain.KnownStatuses)

	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": []string{"user_id", "username", "status"},
			"properties": bson.M{
				"user_id": bson.M{
					"bsonType": "long",
				},
				"username": bson.M{
					"bsonType":  "string",
					"minLength": 1,
				},
				"email": bson.M{
					"bsonType": "string",
					"pattern":  "^[^@]+@[^@]+$",
				},
				"role": bson.M{
					"enum": []string{domain.RoleAdmin, domain.RoleUser, domain.RoleRestricted},
				},
				"status": bson.M{
					"enum": statuses,
				},
			},
		},
	}
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
