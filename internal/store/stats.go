// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"access_share_bot/internal/domain"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes helper methods to retrieve user counts for basic
// diagnostics without leaking MongoDB internals to callers.
type StatsProvider struct {
	users countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the users collection.
func NewStatsProvider(users countCollection) *StatsProvider {
	return &StatsProvider{users: users}
}

// CountUsers returns the number of documents in the users collection.
func (p *StatsProvider) CountUsers(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return count, nil
}

// CountRegistered returns the number of users that completed registration.
func (p *StatsProvider) CountRegistered(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.users.CountDocuments(ctx, bson.D{{Key: "status", Value: domain.StatusRegistered}})
	if err != nil {
		return 0, fmt.Errorf("count registered users: %w", err)
	}

	return count, nil
}
