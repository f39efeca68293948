// Package admin provides startup helpers for ensuring the configured admin
// exists in the database with the correct role.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"access_share_bot/internal/domain"
	"access_share_bot/internal/logging"
)

// bootstrapUsername is the placeholder handle the admin record carries until
// the admin talks to the bot; the schema requires a username on every record.
const bootstrapUsername = "admin"

type userCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// Bootstrapper seeds the configured admin record at startup, so the
// admin-only deletion flow is authorized even against a cold database.
type Bootstrapper struct {
	users  userCollection
	logger *logrus.Entry
}

// NewBootstrapper constructs a Bootstrapper for the provided users collection.
func NewBootstrapper(users userCollection, logger *logrus.Entry) *Bootstrapper {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Bootstrapper{
		users:  users,
		logger: logger,
	}
}

// EnsureAdmin upserts the configured admin user_id with role=admin and
// status=registered.
func (b *Bootstrapper) EnsureAdmin(ctx context.Context, adminID int64) error {
	if b == nil || b.users == nil {
		return errors.New("admin bootstrapper is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if adminID == 0 {
		return errors.New("admin id is required")
	}

	now := time.Now().UTC()

	result, err := b.users.UpdateOne(ctx,
		bson.M{"user_id": adminID},
		bson.M{
			"$set": bson.M{
				"user_id":    adminID,
				"role":       domain.RoleAdmin,
				"status":     domain.StatusRegistered,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"username":   bootstrapUsername,
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}

	b.logger.WithFields(logging.Fields{
		"event":          "admin_bootstrap",
		"admin_id":       adminID,
		"matched_admin":  matchedCount(result),
		"upserted_admin": upsertedCount(result),
	}).Info("ensured admin user")

	return nil
}

func matchedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.MatchedCount
}

func upsertedCount(result *mongo.UpdateResult) int64 {
	if result == nil {
		return 0
	}
	return result.UpsertedCount
}
