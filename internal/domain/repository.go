package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrUserNotFound is returned when a lookup, update, or delete matches no
// stored user.
var ErrUserNotFound = errors.New("user not found")

type userCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	FindOneAndDelete(ctx context.Context, filter interface{}, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult
}

// UserPatch carries a partial user update. Nil fields are left untouched;
// merge semantics match a Mongo $set.
type UserPatch struct {
	Email  *string
	Role   *string
	Status *string
}

// UserRepository persists and retrieves users in MongoDB. All write paths go
// through atomic per-document operations keyed by user_id, which is the only
// coordination the workflows rely on.
type UserRepository struct {
	collection userCollection
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(collection userCollection) *UserRepository {
	return &UserRepository{collection: collection}
}

// Create inserts a user with populated timestamps. The username is
// lower-cased at write time because it doubles as a lookup key for the
// deletion workflow.
func (r *UserRepository) Create(ctx context.Context, user User) (User, error) {
	if r == nil || r.collection == nil {
		return User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return User{}, errors.New("context is required")
	}
	if user.UserID == 0 {
		return User{}, errors.New("user_id is required")
	}
	if strings.TrimSpace(user.Username) == "" {
		return User{}, errors.New("username is required")
	}
	if user.Status == "" {
		user.Status = StatusPendingApproval
	}

	user.Username = NormalizeUsername(user.Username)
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	now := time.Now().UTC().Truncate(time.Millisecond)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// GetByID fetches a user by Telegram user_id.
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (User, error) {
	if r == nil || r.collection == nil {
		return User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return User{}, errors.New("context is required")
	}
	if userID == 0 {
		return User{}, errors.New("user_id is required")
	}

	return r.decodeOne(r.collection.FindOne(ctx, bson.M{"user_id": userID}))
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (User, error) {
	if r == nil || r.collection == nil {
		return User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return User{}, errors.New("context is required")
	}

	normalized := NormalizeUsername(username)
	if normalized == "" {
		return User{}, errors.New("username is required")
	}

	return r.decodeOne(r.collection.FindOne(ctx, bson.M{"username": normalized}))
}

// List returns all stored users ordered by username.
func (r *UserRepository) List(ctx context.Context) ([]User, error) {
	if r == nil || r.collection == nil {
		return nil, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	cursor, err := r.collection.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "username", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	return users, nil
}

// Update applies a partial update to the user with the given id.
func (r *UserRepository) Update(ctx context.Context, userID int64, patch UserPatch) (User, error) {
	if r == nil || r.collection == nil {
		return User{}, errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return User{}, errors.New("context is required")
	}
	if userID == 0 {
		return User{}, errors.New("user_id is required")
	}

	set := bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)}
	if patch.Email != nil {
		set["email"] = strings.ToLower(strings.TrimSpace(*patch.Email))
	}
	if patch.Role != nil {
		if !ValidRole(*patch.Role) {
			return User{}, fmt.Errorf("invalid role %q", *patch.Role)
		}
		set["role"] = *patch.Role
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}

	result := r.collection.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	return r.decodeOne(result)
}

// Delete removes the user with the given id outright. No tombstone is kept.
func (r *UserRepository) Delete(ctx context.Context, userID int64) error {
	if r == nil || r.collection == nil {
		return errors.New("user repository is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	if userID == 0 {
		return errors.New("user_id is required")
	}

	_, err := r.decodeOne(r.collection.FindOneAndDelete(ctx, bson.M{"user_id": userID}))
	return err
}

func (r *UserRepository) decodeOne(result *mongo.SingleResult) (User, error) {
	if result == nil {
		return User{}, errors.New("find user returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}

	var user User
	if err := result.Decode(&user); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}

	return user, nil
}

// NormalizeUsername lower-cases a Telegram handle and strips a leading @, so
// admin input and stored values compare equal.
func NormalizeUsername(username string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(username)), "@")
}
